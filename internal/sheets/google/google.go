package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"budget/internal/cache"
	"budget/internal/core"
	ports "budget/internal/sheets"
)

const (
	DefaultLedgerSheet   = "New Budget Format"
	DefaultSettingsSheet = "POS"
	DefaultSettingsRange = "B3:D3"

	// ledgerReadRange covers the ledger columns plus room for extra ones a
	// user may add by hand; only known headers are interpreted.
	ledgerReadRange = "A:Z"
	idColumn        = 5 // F
	sheetIDCacheTTL = 10 * time.Minute
)

// Ensure interface conformance
var (
	_ ports.Ledger        = (*Client)(nil)
	_ ports.SettingsStore = (*Client)(nil)
)

// Credentials selects how the client authenticates. Exactly one of the
// service account or the OAuth client+token pair is needed.
type Credentials struct {
	ServiceAccountJSON []byte
	OAuthClientJSON    []byte
	OAuthTokenJSON     []byte
}

type Options struct {
	SpreadsheetID string
	LedgerSheet   string
	SettingsSheet string
	SettingsRange string
	Credentials   Credentials

	// ClientOptions replace Credentials entirely when set (tests, custom transports).
	ClientOptions []goption.ClientOption
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	ledgerSheet   string
	settingsSheet string
	settingsRange string

	sheetIDs *cache.LRUCache[int64]

	// mu serializes ledger mutations: each resolves a row number from a
	// read and must write before another mutation can shift rows.
	mu sync.Mutex

	headerMu    sync.Mutex
	headerReady bool
	newID       func() string
}

// New builds a Sheets client from explicit options. Nothing is read from the
// process environment here.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if opts.LedgerSheet == "" {
		opts.LedgerSheet = DefaultLedgerSheet
	}
	if opts.SettingsSheet == "" {
		opts.SettingsSheet = DefaultSettingsSheet
	}
	if opts.SettingsRange == "" {
		opts.SettingsRange = DefaultSettingsRange
	}

	clientOpts := opts.ClientOptions
	if len(clientOpts) == 0 {
		var err error
		clientOpts, err = credentialOptions(ctx, opts.Credentials)
		if err != nil {
			return nil, err
		}
	}

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created",
		"spreadsheet_id", opts.SpreadsheetID,
		"ledger_sheet", opts.LedgerSheet,
		"settings_range", opts.SettingsSheet+"!"+opts.SettingsRange)

	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		ledgerSheet:   opts.LedgerSheet,
		settingsSheet: opts.SettingsSheet,
		settingsRange: opts.SettingsRange,
		sheetIDs:      cache.NewLRUCache[int64](16, sheetIDCacheTTL),
		newID:         uuid.NewString,
	}, nil
}

func credentialOptions(ctx context.Context, c Credentials) ([]goption.ClientOption, error) {
	switch {
	case len(c.OAuthClientJSON) > 0 && len(c.OAuthTokenJSON) > 0:
		cfg, err := goauth.ConfigFromJSON(c.OAuthClientJSON, gsheet.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("parse oauth client: %w", err)
		}
		var tok oauth2.Token
		if err := json.Unmarshal(c.OAuthTokenJSON, &tok); err != nil {
			return nil, fmt.Errorf("parse oauth token: %w", err)
		}
		slog.InfoContext(ctx, "Using OAuth user credentials")
		return []goption.ClientOption{goption.WithTokenSource(cfg.TokenSource(ctx, &tok))}, nil
	case len(c.ServiceAccountJSON) > 0:
		slog.InfoContext(ctx, "Using service account credentials", "credentials_size", len(c.ServiceAccountJSON))
		return []goption.ClientOption{
			goption.WithCredentialsJSON(c.ServiceAccountJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}, nil
	default:
		return nil, errors.New("missing credentials (service account or oauth client+token)")
	}
}

// ListRows reads the ledger sheet. The first row is the header; fully blank
// rows are skipped.
func (c *Client) ListRows(ctx context.Context) ([]core.RawRecord, error) {
	rows, err := c.readLedger(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.RawRecord, len(rows))
	for i, r := range rows {
		out[i] = r.Record
	}
	return out, nil
}

func (c *Client) readLedger(ctx context.Context) ([]ledgerRow, error) {
	rng := a1(c.ledgerSheet, ledgerReadRange)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseLedger(resp.Values), nil
}

// Append writes the entry as a new row in fixed column order. The row is
// not read back. A caller-supplied id already present in the ledger yields
// core.ErrDuplicateEntry.
func (c *Client) Append(ctx context.Context, e core.BudgetEntry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureIDHeader(ctx); err != nil {
		return "", err
	}
	if e.ID == "" {
		e.ID = c.newID()
	} else {
		rows, err := c.readLedger(ctx)
		if err != nil {
			return "", err
		}
		if _, ok := findRow(rows, e.ID); ok {
			return "", fmt.Errorf("append %s: %w", e.ID, core.ErrDuplicateEntry)
		}
	}

	rng := a1(c.ledgerSheet, "A:F")
	vr := &gsheet.ValueRange{Values: [][]any{e.Row()}}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", rng, err)
	}
	slog.InfoContext(ctx, "Ledger row appended", "sheet", c.ledgerSheet, "entry_id", e.ID, "flow", e.Flow)
	return e.ID, nil
}

// Update rewrites the row carrying id. A row identified only by its content
// fingerprint receives a fresh stable id as part of the rewrite.
func (c *Client) Update(ctx context.Context, id string, e core.BudgetEntry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.readLedger(ctx)
	if err != nil {
		return err
	}
	row, ok := findRow(rows, id)
	if !ok {
		return core.ErrEntryNotFound
	}
	if err := c.ensureIDHeader(ctx); err != nil {
		return err
	}

	e.ID = id
	if isFingerprint(id) {
		e.ID = c.newID()
	}
	rng := a1(c.ledgerSheet, fmt.Sprintf("A%d:F%d", row.Number, row.Number))
	vr := &gsheet.ValueRange{Values: [][]any{e.Row()}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	slog.InfoContext(ctx, "Ledger row updated", "sheet", c.ledgerSheet, "entry_id", e.ID, "row", row.Number)
	return nil
}

// Delete removes the row carrying id. The row position is resolved from a
// fresh read immediately before the delete, so a row that moved is still
// found and a row that is gone yields core.ErrEntryNotFound.
func (c *Client) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.readLedger(ctx)
	if err != nil {
		return err
	}
	row, ok := findRow(rows, id)
	if !ok {
		return core.ErrEntryNotFound
	}
	sheetID, err := c.sheetID(ctx, c.ledgerSheet)
	if err != nil {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(row.Number - 1),
					EndIndex:        int64(row.Number),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d in %s: %w", row.Number, c.ledgerSheet, err)
	}
	slog.InfoContext(ctx, "Ledger row deleted", "sheet", c.ledgerSheet, "entry_id", id, "row", row.Number)
	return nil
}

// LoadSplit reads the three percentage cells of the settings range.
func (c *Client) LoadSplit(ctx context.Context) (core.DistributionSplit, error) {
	rng := a1(c.settingsSheet, c.settingsRange)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return core.DistributionSplit{}, fmt.Errorf("read %s: %w", rng, err)
	}
	split, err := parseSplit(resp.Values)
	if err != nil {
		return core.DistributionSplit{}, fmt.Errorf("parse %s: %w", rng, err)
	}
	return split, nil
}

// SaveSplit overwrites the settings range.
func (c *Client) SaveSplit(ctx context.Context, s core.DistributionSplit) error {
	if err := s.Validate(); err != nil {
		return err
	}
	rng := a1(c.settingsSheet, c.settingsRange)
	vr := &gsheet.ValueRange{Values: [][]any{{s.ProfitPct, s.OpexPct, s.SlushPct}}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", rng, err)
	}
	slog.InfoContext(ctx, "Distribution split saved", "range", rng,
		"profit", s.ProfitPct, "opex", s.OpexPct, "slush", s.SlushPct)
	return nil
}

// Ping checks that the spreadsheet is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("spreadsheetId").Context(ctx).Do(); err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	return nil
}

// Cache exposes the sheet-id cache so a cache.Manager can sweep it.
func (c *Client) Cache() cache.Cleaner {
	return c.sheetIDs
}

func (c *Client) sheetID(ctx context.Context, title string) (int64, error) {
	if id, ok := c.sheetIDs.Get(title); ok {
		return id, nil
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties == nil {
			continue
		}
		c.sheetIDs.Set(sh.Properties.Title, sh.Properties.SheetId)
	}
	if id, ok := c.sheetIDs.Get(title); ok {
		return id, nil
	}
	return 0, fmt.Errorf("sheet %q not found", title)
}

// ensureIDHeader writes the ID header into F1 once when the sheet predates
// stable identifiers. Writes put the id in column F, so a header row whose ID
// column is elsewhere, or whose F1 holds another header, is an error.
func (c *Client) ensureIDHeader(ctx context.Context) error {
	c.headerMu.Lock()
	defer c.headerMu.Unlock()
	if c.headerReady {
		return nil
	}

	rng := a1(c.ledgerSheet, "1:1")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	var header []string
	if len(resp.Values) > 0 {
		header = toStrings(resp.Values[0])
	}
	var f1 string
	if len(header) > idColumn {
		f1 = header[idColumn]
	}
	idCol := indexOf(header, core.ColumnID)
	switch {
	case idCol == idColumn:
	case idCol >= 0:
		return fmt.Errorf("%s: ID header must be in column F, found in column %d", c.ledgerSheet, idCol+1)
	case f1 != "":
		return fmt.Errorf("%s: cannot add ID header, F1 already holds %q", c.ledgerSheet, f1)
	default:
		cell := a1(c.ledgerSheet, "F1")
		vr := &gsheet.ValueRange{Values: [][]any{{core.ColumnID}}}
		if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, cell, vr).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return fmt.Errorf("write id header: %w", err)
		}
		slog.InfoContext(ctx, "Added ID column header", "sheet", c.ledgerSheet)
	}
	c.headerReady = true
	return nil
}

// a1 quotes a sheet title for use in an A1 range.
func a1(sheet, rng string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + rng
}
