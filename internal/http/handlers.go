package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"budget/internal/charts"
	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/services"
)

// bucketRow is one line of a distribution table.
type bucketRow struct {
	Bucket      core.Bucket
	Percent     int
	Distributed decimal.Decimal
	Actual      decimal.Decimal
}

type dashboardData struct {
	View       *services.View
	Buckets    []bucketRow
	Overridden bool
	Bars       charts.BarChart
	Pie        charts.PieChart
	Calculator *calculatorData
}

type calculatorData struct {
	Amount string
	Split  core.DistributionSplit
	Rows   []bucketRow
	Total  decimal.Decimal
}

// newDashboardData prepares the template data. A chart that fails to render
// is left empty and its error returned alongside the otherwise complete data.
func newDashboardData(v *services.View) (dashboardData, error) {
	d := dashboardData{
		View:       v,
		Overridden: v.Split != v.SavedSplit,
	}
	var barsErr, pieErr error
	d.Bars, barsErr = charts.GroupedBars(v.Comparison)
	d.Pie, pieErr = charts.Pie(v.Summary.ExpenseByCategory)

	for _, c := range v.Comparison {
		d.Buckets = append(d.Buckets, bucketRow{
			Bucket:      c.Bucket,
			Percent:     v.Split.Percent(c.Bucket),
			Distributed: c.Distributed,
			Actual:      c.Actual,
		})
	}
	if v.Calculator != nil {
		d.Calculator = newCalculatorData(v.Split, *v.Calculator, "")
	}
	return d, errors.Join(barsErr, pieErr)
}

func newCalculatorData(split core.DistributionSplit, dist core.Distribution, amount string) *calculatorData {
	c := &calculatorData{Amount: amount, Split: split, Total: dist.Total()}
	for _, b := range core.Buckets {
		c.Rows = append(c.Rows, bucketRow{Bucket: b, Percent: split.Percent(b), Distributed: dist.Amount(b)})
	}
	return c
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks that templates are loaded and the ledger answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{"templates": "ok", "ledger": "ok"}

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	if s.ready == nil {
		checks["ledger"] = "not_checked"
	} else if err := s.ready.Ping(ctx); err != nil {
		checks["ledger"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleIndex renders the full page, honoring slider overrides in the query.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.renderDashboard(w, r, "page")
}

// handleDashboardPartial re-renders the dashboard body, typically after a
// slider moved or the ledger changed.
func (s *Server) handleDashboardPartial(w http.ResponseWriter, r *http.Request) {
	s.renderDashboard(w, r, "dashboard")
}

func (s *Server) renderDashboard(w http.ResponseWriter, r *http.Request, name string) {
	if resp := RequireMethod(r, http.MethodGet, http.MethodHead); resp != nil {
		resp.Write(w)
		return
	}

	req := services.RenderRequest{}
	query := r.URL.Query()
	override, present, err := ParseSplitParams(query.Get)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	if present {
		req.Override = &override
	}
	if raw := query.Get("amount"); raw != "" {
		amount, err := core.ParseAmountInput(raw)
		if err != nil {
			UnprocessableEntityError("Amount must be a non-negative number").Write(w)
			return
		}
		req.CalculatorIncome = &amount
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	view, err := s.dashboard.Render(ctx, req)
	if err != nil {
		s.structured.LogError(ctx, "Dashboard render failed", err, log.ComponentDashboard, log.OpRender, nil)
		InternalServerError("Could not load the budget ledger").Write(w)
		return
	}

	data, err := newDashboardData(view)
	if err != nil {
		s.logger.WarnContext(ctx, "Chart render failed", log.FieldError, err.Error(), log.FieldOperation, log.OpRender)
	}
	if data.Calculator != nil {
		data.Calculator.Amount = query.Get("amount")
	}
	s.executeTemplate(w, r, name, data)
}

// handleCalculator distributes an ad-hoc amount with the saved split, or
// with the sliders' values when they are sent along.
func (s *Server) handleCalculator(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet); resp != nil {
		resp.Write(w)
		return
	}

	query := r.URL.Query()
	amount, err := core.ParseAmountInput(query.Get("amount"))
	if err != nil {
		UnprocessableEntityError("Amount must be a non-negative number").Write(w)
		return
	}
	split, present, err := ParseSplitParams(query.Get)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	if !present {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		split, _ = s.settings.Load(ctx)
	}

	data := newCalculatorData(split, core.Distribute(split, amount), query.Get("amount"))
	s.executeTemplate(w, r, "calculator", data)
}

// handleSaveSettings persists the split. Each percentage must be an integer
// in [0,100]; their sum is not checked.
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	split, present, err := ParseSplitParams(p.Get)
	if err == nil && !present {
		err = errors.New("profit, opex and slush are required")
	}
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	if err := s.settings.Save(ctx, split); err != nil {
		if errors.Is(err, core.ErrInvalidPercent) {
			UnprocessableEntityError(err.Error()).Write(w)
			return
		}
		s.structured.LogError(ctx, "Failed to save distribution split", err, log.ComponentSettings, log.OpSave,
			log.NewFields().WithSplit(split))
		NewHTMXResponse().
			Status(http.StatusInternalServerError).
			TriggerErrorNotification("Could not save settings").
			BodyHTML(`<div class="error">Could not save settings</div>`).
			Write(w)
		return
	}

	s.logger.InfoContext(ctx, "Distribution split saved", log.NewFields().WithSplit(split).ToSlice()...)
	NewHTMXResponse().
		TriggerSettingsSaved(split).
		TriggerSuccessNotification("Settings saved").
		BodyHTML(`<span class="saved">Saved</span>`).
		Write(w)
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	entry, err := ParseEntry(p.Get)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	id, err := s.entries.Add(ctx, entry)
	if err != nil {
		s.writeMutationError(ctx, w, err, log.OpAppend, entry)
		return
	}

	NewHTMXResponse().
		Status(http.StatusCreated).
		Header("X-Entry-ID", id).
		TriggerLedgerChanged().
		TriggerFormReset().
		TriggerSuccessNotification("Added " + entry.Label()).
		Write(w)
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	id := p.Get("id")
	if id == "" {
		BadRequestError("Missing entry id").Write(w)
		return
	}
	entry, err := ParseEntry(p.Get)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	entry.ID = id
	if err := s.entries.Update(ctx, id, entry); err != nil {
		s.writeMutationError(ctx, w, err, log.OpUpdate, entry)
		return
	}

	NewHTMXResponse().
		TriggerLedgerChanged().
		TriggerSuccessNotification("Updated " + entry.Label()).
		Write(w)
}

// handleDeleteEntry accepts the id in the body or the query string, since
// DELETE bodies are not parsed into r.Form.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if resp := RequireDeleteOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	id := p.Get("id")
	if id == "" {
		id = sanitizeInput(r.URL.Query().Get("id"))
	}
	if id == "" {
		BadRequestError("Missing entry id").Write(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	if err := s.entries.Delete(ctx, id); err != nil {
		s.writeMutationError(ctx, w, err, log.OpDelete, core.BudgetEntry{ID: id})
		return
	}

	NewHTMXResponse().
		TriggerLedgerChanged().
		TriggerSuccessNotification("Entry deleted").
		Write(w)
}

// writeMutationError maps service errors to status codes: not-found is 404,
// a duplicate id 409, validation failures 422, anything else 500.
func (s *Server) writeMutationError(ctx context.Context, w http.ResponseWriter, err error, op string, e core.BudgetEntry) {
	switch {
	case errors.Is(err, core.ErrEntryNotFound):
		s.logger.WarnContext(ctx, "Entry not found", log.NewFields().WithEntry(e).WithOperation(op).ToSlice()...)
		NewHTMXResponse().
			Status(http.StatusNotFound).
			TriggerLedgerChanged().
			TriggerErrorNotification("That entry no longer exists").
			BodyHTML(`<div class="error">Entry not found</div>`).
			Write(w)
	case isValidationError(err):
		UnprocessableEntityError(err.Error()).Write(w)
	case errors.Is(err, core.ErrDuplicateEntry):
		NewHTMXResponse().
			Status(http.StatusConflict).
			TriggerErrorNotification("That entry already exists").
			BodyHTML(`<div class="error">Entry already exists</div>`).
			Write(w)
	default:
		s.structured.LogError(ctx, "Ledger mutation failed", err, log.ComponentLedger, op, log.NewFields().WithEntry(e))
		NewHTMXResponse().
			Status(http.StatusInternalServerError).
			TriggerErrorNotification("Could not update the ledger").
			BodyHTML(`<div class="error">Could not update the ledger</div>`).
			Write(w)
	}
}

// executeTemplate renders into a buffer first so a template failure can
// still produce a clean 500.
func (s *Server) executeTemplate(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.structured.LogError(r.Context(), "Template execution failed", err, log.ComponentTemplate, log.OpRender,
			log.LogFields{"template": name})
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
