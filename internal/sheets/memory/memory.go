package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"budget/internal/core"
	"budget/internal/sheets"
)

var (
	_ sheets.Ledger        = (*Store)(nil)
	_ sheets.SettingsStore = (*Store)(nil)
)

// ErrNoSettings is returned by LoadSplit before any split has been saved.
var ErrNoSettings = fmt.Errorf("memory: no distribution split saved")

// Store keeps the ledger and the split in process memory. Rows are kept raw so
// the normalizer sees the same shapes a spreadsheet would hand over.
type Store struct {
	mu    sync.Mutex
	rows  []core.RawRecord
	split *core.DistributionSplit
	newID func() string
}

// New creates a store holding the given rows. Rows without an ID get one.
// A nil split makes LoadSplit fail until SaveSplit is called.
func New(rows []core.RawRecord, split *core.DistributionSplit) *Store {
	s := &Store{newID: uuid.NewString}
	for _, r := range rows {
		if r.ID == "" {
			r.ID = s.newID()
		}
		s.rows = append(s.rows, copyRecord(r))
	}
	if split != nil {
		cp := *split
		s.split = &cp
	}
	return s
}

type seedFile struct {
	Split *struct {
		Profit int `yaml:"profit"`
		Opex   int `yaml:"opex"`
		Slush  int `yaml:"slush"`
	} `yaml:"split"`
	Entries []struct {
		ID          string `yaml:"id"`
		Item        any    `yaml:"item"`
		Flow        any    `yaml:"flow"`
		Amount      any    `yaml:"amount"`
		Category    any    `yaml:"category"`
		ExpenseType any    `yaml:"expense_type"`
	} `yaml:"entries"`
}

// NewFromFile seeds a store from a YAML file. A missing path yields an empty
// store; a malformed file is an error.
func NewFromFile(path string) (*Store, error) {
	if path == "" {
		return New(nil, nil), nil
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(nil, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(b, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}

	rows := make([]core.RawRecord, 0, len(seed.Entries))
	for _, e := range seed.Entries {
		rows = append(rows, core.RawRecord{
			ID: e.ID,
			Values: map[string]any{
				core.ColumnItem:        e.Item,
				core.ColumnFlow:        e.Flow,
				core.ColumnAmount:      e.Amount,
				core.ColumnCategory:    e.Category,
				core.ColumnExpenseType: e.ExpenseType,
			},
		})
	}

	var split *core.DistributionSplit
	if seed.Split != nil {
		split = &core.DistributionSplit{ProfitPct: seed.Split.Profit, OpexPct: seed.Split.Opex, SlushPct: seed.Split.Slush}
	}
	return New(rows, split), nil
}

// ListRows returns a copy of every row in insertion order.
func (s *Store) ListRows(_ context.Context) ([]core.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.RawRecord, len(s.rows))
	for i, r := range s.rows {
		out[i] = copyRecord(r)
	}
	return out, nil
}

// Append stores the entry at the end of the ledger. A caller-supplied id
// that is already stored yields core.ErrDuplicateEntry.
func (s *Store) Append(_ context.Context, e core.BudgetEntry) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = s.newID()
	} else if s.indexOf(e.ID) >= 0 {
		return "", fmt.Errorf("append %s: %w", e.ID, core.ErrDuplicateEntry)
	}
	s.rows = append(s.rows, e.Record())
	return e.ID, nil
}

func (s *Store) Update(_ context.Context, id string, e core.BudgetEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return core.ErrEntryNotFound
	}
	e.ID = id
	s.rows[i] = e.Record()
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return core.ErrEntryNotFound
	}
	s.rows = append(s.rows[:i], s.rows[i+1:]...)
	return nil
}

func (s *Store) LoadSplit(_ context.Context) (core.DistributionSplit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.split == nil {
		return core.DistributionSplit{}, ErrNoSettings
	}
	if err := s.split.Validate(); err != nil {
		return core.DistributionSplit{}, err
	}
	return *s.split, nil
}

func (s *Store) SaveSplit(_ context.Context, split core.DistributionSplit) error {
	if err := split.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.split = &split
	return nil
}

func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, r := range s.rows {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func copyRecord(r core.RawRecord) core.RawRecord {
	values := make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	return core.RawRecord{ID: r.ID, Values: values}
}
