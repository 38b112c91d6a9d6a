package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventKind string

const (
	EventEntryAppended EventKind = "entry.appended"
	EventEntryUpdated  EventKind = "entry.updated"
	EventEntryDeleted  EventKind = "entry.deleted"
	EventSplitSaved    EventKind = "split.saved"
)

// LedgerEvent announces a change in the local store. It carries only the
// entry id; the consumer reads the current state from the database.
type LedgerEvent struct {
	Kind      EventKind `json:"kind"`
	EntryID   string    `json:"entry_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEvent(kind EventKind, entryID string) *LedgerEvent {
	return &LedgerEvent{
		Kind:      kind,
		EntryID:   entryID,
		Timestamp: time.Now(),
	}
}

// IsEntryEvent reports whether the event refers to a single ledger entry.
func (m *LedgerEvent) IsEntryEvent() bool {
	switch m.Kind {
	case EventEntryAppended, EventEntryUpdated, EventEntryDeleted:
		return true
	}
	return false
}

func (m *LedgerEvent) Validate() error {
	switch {
	case m.IsEntryEvent():
		if m.EntryID == "" {
			return fmt.Errorf("%s event without entry id", m.Kind)
		}
	case m.Kind == EventSplitSaved:
	default:
		return fmt.Errorf("unknown event kind %q", m.Kind)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON decodes and validates an event.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
