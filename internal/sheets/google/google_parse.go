package google

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"budget/internal/core"
)

const fingerprintPrefix = "fp-"

var errSettingsShape = errors.New("expected exactly three cells")

type ledgerRow struct {
	// Number is the 1-based sheet row.
	Number int
	Record core.RawRecord
}

// parseLedger converts a values matrix whose first row is the header into
// raw records. Rows without an ID cell get a fingerprint identifier
// fp-<hash>-<n>-<m>: the row is the n-th of m rows with identical data
// cells. Adding or removing any of those rows changes m, so an id handed out
// before the change no longer matches any row.
func parseLedger(values [][]any) []ledgerRow {
	if len(values) == 0 {
		return nil
	}
	headers := toStrings(values[0])
	idCol := indexOf(headers, core.ColumnID)
	seen := map[string]int{}
	var fps []string

	var out []ledgerRow
	for i := 1; i < len(values); i++ {
		cells := values[i]
		if isBlankRow(cells) {
			continue
		}
		rec := core.RawRecord{Values: make(map[string]any, len(headers))}
		for col, h := range headers {
			if h == "" || col == idCol {
				continue
			}
			if _, dup := rec.Values[h]; dup {
				continue
			}
			if col < len(cells) {
				rec.Values[h] = cells[col]
			} else {
				rec.Values[h] = ""
			}
		}

		rec.ID = strings.TrimSpace(cellString(cells, idCol))
		fp := ""
		if rec.ID == "" {
			fp = fingerprint(rec.Values)
			seen[fp]++
			rec.ID = fmt.Sprintf("%s%s-%d", fingerprintPrefix, fp, seen[fp])
		}
		fps = append(fps, fp)
		out = append(out, ledgerRow{Number: i + 1, Record: rec})
	}
	for i, fp := range fps {
		if fp != "" {
			out[i].Record.ID += fmt.Sprintf("-%d", seen[fp])
		}
	}
	return out
}

// fingerprint hashes the five data columns of a row.
func fingerprint(values map[string]any) string {
	h := sha256.New()
	for _, col := range core.LedgerColumns[:5] {
		h.Write([]byte(strings.TrimSpace(fmt.Sprint(valueOrEmpty(values[col])))))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}

func isFingerprint(id string) bool {
	return strings.HasPrefix(id, fingerprintPrefix)
}

func findRow(rows []ledgerRow, id string) (ledgerRow, bool) {
	if id == "" {
		return ledgerRow{}, false
	}
	for _, r := range rows {
		if r.Record.ID == id {
			return r, true
		}
	}
	return ledgerRow{}, false
}

// parseSplit reads profit, opex and slush percentages from a single row of
// three integer cells, each in [0,100].
func parseSplit(values [][]any) (core.DistributionSplit, error) {
	if len(values) != 1 || len(values[0]) != 3 {
		return core.DistributionSplit{}, errSettingsShape
	}
	var pcts [3]int
	for i, v := range toStrings(values[0]) {
		n, err := strconv.Atoi(v)
		if err != nil {
			return core.DistributionSplit{}, fmt.Errorf("cell %d: %q is not an integer", i+1, v)
		}
		pcts[i] = n
	}
	return core.NewSplit(pcts[0], pcts[1], pcts[2])
}

func isBlankRow(cells []any) bool {
	for _, v := range cells {
		if strings.TrimSpace(fmt.Sprint(valueOrEmpty(v))) != "" {
			return false
		}
	}
	return true
}

func cellString(cells []any, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return fmt.Sprint(valueOrEmpty(cells[idx]))
}

func valueOrEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(valueOrEmpty(v)))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}
