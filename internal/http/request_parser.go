// Package http provides HTTP server and handler implementations.
//
// This file implements parsing and validation of request data: split
// percentages from sliders and forms, ledger entries from the entry forms,
// and a body reader that accepts both JSON and form encoding.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"budget/internal/core"
)

// maxBodyBytes bounds what a single form or JSON body may carry.
const maxBodyBytes = 64 << 10

// ParseSplitParams reads the profit, opex and slush percentages through get.
// present is false when none of the three is given; giving only some of
// them is an error, as is a value that is not an integer in [0,100].
func ParseSplitParams(get func(string) string) (split core.DistributionSplit, present bool, err error) {
	names := [...]string{"profit", "opex", "slush"}
	var raw [3]string
	given := 0
	for i, name := range names {
		raw[i] = strings.TrimSpace(get(name))
		if raw[i] != "" {
			given++
		}
	}
	if given == 0 {
		return core.DistributionSplit{}, false, nil
	}
	if given < len(names) {
		return core.DistributionSplit{}, true, errors.New("profit, opex and slush must be given together")
	}

	var pct [3]int
	for i, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			return core.DistributionSplit{}, true, fmt.Errorf("%w: %s=%q is not an integer", core.ErrInvalidPercent, names[i], v)
		}
		pct[i] = n
	}

	split, err = core.NewSplit(pct[0], pct[1], pct[2])
	return split, true, err
}

// ParseEntry builds a ledger entry from the entry form fields. The flow must
// be income or expense and the amount a non-negative number; item, category
// and expense type are free text.
func ParseEntry(get func(string) string) (core.BudgetEntry, error) {
	flow, err := core.ParseFlow(get("flow"))
	if err != nil {
		return core.BudgetEntry{}, err
	}
	amount, err := core.ParseAmountInput(get("amount"))
	if err != nil {
		return core.BudgetEntry{}, fmt.Errorf("%w: amount must be a non-negative number", core.ErrInvalidAmount)
	}

	e := core.BudgetEntry{
		Item:        sanitizeInput(get("item")),
		Flow:        flow,
		Amount:      amount,
		Category:    sanitizeInput(get("category")),
		ExpenseType: sanitizeInput(get("expense_type")),
	}
	if err := e.Validate(); err != nil {
		return core.BudgetEntry{}, err
	}
	return e, nil
}

func isValidationError(err error) bool {
	return errors.Is(err, core.ErrInvalidFlow) ||
		errors.Is(err, core.ErrInvalidAmount) ||
		errors.Is(err, core.ErrInvalidPercent) ||
		errors.Is(err, core.ErrItemTooLong)
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body once and keeps it for Parse.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a trimmed, sanitized value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

func RequireDeleteOrPOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodDelete, http.MethodPost)
}
