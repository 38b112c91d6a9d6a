package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"
)

// fakeSheets is a minimal in-memory stand-in for the Sheets REST API,
// covering the calls the client makes.
type fakeSheets struct {
	mu       sync.Mutex
	id       string
	tabs     map[string]*fakeTab
	metaGets int
	puts     []string
}

type fakeTab struct {
	id   int64
	rows [][]any
}

func newFakeSheets() *fakeSheets {
	return &fakeSheets{id: "sheet-1", tabs: map[string]*fakeTab{}}
}

func (f *fakeSheets) addTab(title string, id int64, rows ...[]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tabs[title] = &fakeTab{id: id, rows: rows}
}

func (f *fakeSheets) rows(title string) [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tabs[title]
	if t == nil {
		return nil
	}
	out := make([][]any, len(t.rows))
	copy(out, t.rows)
	return out
}

func (f *fakeSheets) counts() (metaGets int, puts []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metaGets, append([]string(nil), f.puts...)
}

func (f *fakeSheets) removeRow(title string, idx int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tabs[title]
	t.rows = append(t.rows[:idx], t.rows[idx+1:]...)
}

func (f *fakeSheets) client(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Options{
		SpreadsheetID: f.id,
		ClientOptions: []goption.ClientOption{
			goption.WithEndpoint(srv.URL + "/"),
			goption.WithoutAuthentication(),
		},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func (f *fakeSheets) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := "/v4/spreadsheets/" + f.id
	path := r.URL.Path
	if !strings.HasPrefix(path, prefix) {
		apiError(w, http.StatusNotFound, "unknown spreadsheet")
		return
	}
	rest := strings.TrimPrefix(path, prefix)

	switch {
	case rest == "" && r.Method == http.MethodGet:
		f.metaGets++
		f.writeMeta(w)
	case rest == ":batchUpdate" && r.Method == http.MethodPost:
		f.batchUpdate(w, r)
	case strings.HasPrefix(rest, "/values/"):
		rng := strings.TrimPrefix(rest, "/values/")
		if strings.HasSuffix(rng, ":append") {
			f.appendValues(w, r, strings.TrimSuffix(rng, ":append"))
			return
		}
		switch r.Method {
		case http.MethodGet:
			f.getValues(w, rng)
		case http.MethodPut:
			f.puts = append(f.puts, rng)
			f.putValues(w, r, rng)
		default:
			apiError(w, http.StatusMethodNotAllowed, "method")
		}
	default:
		apiError(w, http.StatusNotFound, "unknown path "+path)
	}
}

func (f *fakeSheets) writeMeta(w http.ResponseWriter) {
	type props struct {
		SheetID int64  `json:"sheetId"`
		Title   string `json:"title"`
	}
	type sheet struct {
		Properties props `json:"properties"`
	}
	var sheets []sheet
	for title, tab := range f.tabs {
		sheets = append(sheets, sheet{Properties: props{SheetID: tab.id, Title: title}})
	}
	writeJSON(w, map[string]any{"spreadsheetId": f.id, "sheets": sheets})
}

func (f *fakeSheets) getValues(w http.ResponseWriter, rng string) {
	title, c0, r0, c1, r1, err := parseA1(rng)
	if err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}
	tab := f.tabs[title]
	if tab == nil {
		apiError(w, http.StatusBadRequest, "Unable to parse range: "+rng)
		return
	}
	var out [][]any
	for ri := r0; ri <= r1 && ri < len(tab.rows); ri++ {
		row := tab.rows[ri]
		var cells []any
		for ci := c0; ci <= c1 && ci < len(row); ci++ {
			cells = append(cells, row[ci])
		}
		for len(cells) > 0 && isBlankRow(cells[len(cells)-1:]) {
			cells = cells[:len(cells)-1]
		}
		if cells == nil {
			cells = []any{}
		}
		out = append(out, cells)
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	resp := map[string]any{"range": rng, "majorDimension": "ROWS"}
	if len(out) > 0 {
		resp["values"] = out
	}
	writeJSON(w, resp)
}

func (f *fakeSheets) putValues(w http.ResponseWriter, r *http.Request, rng string) {
	title, c0, r0, _, _, err := parseA1(rng)
	if err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}
	tab := f.tabs[title]
	if tab == nil {
		apiError(w, http.StatusBadRequest, "Unable to parse range: "+rng)
		return
	}
	var body struct {
		Values [][]any `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}
	tab.write(r0, c0, body.Values)
	writeJSON(w, map[string]any{"updatedRange": rng})
}

func (f *fakeSheets) appendValues(w http.ResponseWriter, r *http.Request, rng string) {
	title, _, _, _, _, err := parseA1(rng)
	if err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}
	tab := f.tabs[title]
	if tab == nil {
		apiError(w, http.StatusBadRequest, "Unable to parse range: "+rng)
		return
	}
	var body struct {
		Values [][]any `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}
	next := len(tab.rows)
	for next > 0 && isBlankRow(tab.rows[next-1]) {
		next--
	}
	tab.write(next, 0, body.Values)
	writeJSON(w, map[string]any{"updates": map[string]any{"updatedRows": len(body.Values)}})
}

func (f *fakeSheets) batchUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Requests []struct {
			DeleteDimension *struct {
				Range struct {
					SheetID    int64  `json:"sheetId"`
					Dimension  string `json:"dimension"`
					StartIndex int    `json:"startIndex"`
					EndIndex   int    `json:"endIndex"`
				} `json:"range"`
			} `json:"deleteDimension"`
		} `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, req := range body.Requests {
		if req.DeleteDimension == nil {
			continue
		}
		dr := req.DeleteDimension.Range
		for _, tab := range f.tabs {
			if tab.id != dr.SheetID || dr.Dimension != "ROWS" {
				continue
			}
			if dr.StartIndex < 0 || dr.EndIndex > len(tab.rows) || dr.StartIndex >= dr.EndIndex {
				apiError(w, http.StatusBadRequest, "invalid dimension range")
				return
			}
			tab.rows = append(tab.rows[:dr.StartIndex], tab.rows[dr.EndIndex:]...)
		}
	}
	writeJSON(w, map[string]any{"spreadsheetId": f.id})
}

func (t *fakeTab) write(r0, c0 int, values [][]any) {
	for i, vals := range values {
		ri := r0 + i
		for len(t.rows) <= ri {
			t.rows = append(t.rows, []any{})
		}
		row := t.rows[ri]
		for len(row) < c0+len(vals) {
			row = append(row, "")
		}
		for j, v := range vals {
			row[c0+j] = v
		}
		t.rows[ri] = row
	}
}

// parseA1 understands 'Title'!A1:B2, 'Title'!A:F, 'Title'!1:1 and 'Title'!F1.
// Open ends default to the whole sheet.
func parseA1(rng string) (title string, c0, r0, c1, r1 int, err error) {
	i := strings.LastIndex(rng, "!")
	if i < 0 {
		return "", 0, 0, 0, 0, fmt.Errorf("range %q has no sheet", rng)
	}
	title = strings.ReplaceAll(strings.Trim(rng[:i], "'"), "''", "'")
	start, end, found := strings.Cut(rng[i+1:], ":")
	if !found {
		end = start
	}
	c0, r0 = parseCell(start)
	c1, r1 = parseCell(end)
	if c0 < 0 {
		c0 = 0
	}
	if r0 < 0 {
		r0 = 0
	}
	if c1 < 0 {
		c1 = 25
	}
	if r1 < 0 {
		r1 = 1 << 20
	}
	return title, c0, r0, c1, r1, nil
}

func parseCell(s string) (col, row int) {
	col, row = -1, -1
	letters := strings.TrimRight(s, "0123456789")
	if letters != "" {
		col = 0
		for _, ch := range letters {
			col = col*26 + int(ch-'A'+1)
		}
		col--
	}
	if digits := s[len(letters):]; digits != "" {
		n, _ := strconv.Atoi(digits)
		row = n - 1
	}
	return col, row
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func apiError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": msg, "status": http.StatusText(code)},
	})
}
