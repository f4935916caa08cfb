package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"budget/internal/core"
)

// EventType names a record mutation.
type EventType string

const (
	EventRecordCreated EventType = "record.created"
	EventRecordUpdated EventType = "record.updated"
	EventRecordDeleted EventType = "record.deleted"
)

// RecordEvent is published after a record mutation has been committed.
// Delivery is at-least-once; consumers must tolerate duplicates.
type RecordEvent struct {
	Type        EventType `json:"type"`
	TenantID    string    `json:"tenant_id"`
	RecordID    string    `json:"record_id"`
	CategoryID  string    `json:"category_id,omitempty"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	OccurredAt  time.Time `json:"occurred_at,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewRecordEvent describes a committed mutation of rec. For deletions only
// the identifier is known, so rec may be zero apart from ID.
func NewRecordEvent(t EventType, tenantID string, rec core.Record) *RecordEvent {
	return &RecordEvent{
		Type:        t,
		TenantID:    tenantID,
		RecordID:    rec.ID,
		CategoryID:  rec.CategoryID,
		AmountCents: rec.Amount.Cents,
		OccurredAt:  rec.OccurredAt,
		Timestamp:   time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecordEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordEventFromJSON decodes and sanity-checks a message body.
func RecordEventFromJSON(data []byte) (*RecordEvent, error) {
	var msg RecordEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case EventRecordCreated, EventRecordUpdated, EventRecordDeleted:
	default:
		return nil, errors.New("unknown event type " + string(msg.Type))
	}
	if msg.TenantID == "" || msg.RecordID == "" {
		return nil, errors.New("event without tenant or record id")
	}
	return &msg, nil
}
