package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finbot/internal/core"
)

// Ledger event types.
const (
	EventTransactionCreated = "transaction.created"
	EventTransactionDeleted = "transaction.deleted"
)

// TransactionEvent announces a change to a user's ledger. Deleted events
// carry the same transaction fields as the created event they undo.
type TransactionEvent struct {
	EventID       string    `json:"event_id"`
	Type          string    `json:"type"`
	TransactionID int64     `json:"transaction_id"`
	OwnerID       int64     `json:"owner_id"`
	Kind          string    `json:"kind"`
	AmountCents   int64     `json:"amount_cents"`
	Category      string    `json:"category"`
	Date          string    `json:"date"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionCreated(tx core.Transaction) *TransactionEvent {
	return newTransactionEvent(EventTransactionCreated, tx)
}

func NewTransactionDeleted(tx core.Transaction) *TransactionEvent {
	return newTransactionEvent(EventTransactionDeleted, tx)
}

func newTransactionEvent(eventType string, tx core.Transaction) *TransactionEvent {
	return &TransactionEvent{
		EventID:       uuid.NewString(),
		Type:          eventType,
		TransactionID: tx.ID,
		OwnerID:       tx.OwnerID,
		Kind:          string(tx.Kind),
		AmountCents:   tx.Amount.Cents,
		Category:      tx.Category,
		Date:          tx.Date.Format(core.DateLayout),
		Timestamp:     time.Now().UTC(),
	}
}

// Transaction rebuilds the ledger entry the event describes.
func (e *TransactionEvent) Transaction() (core.Transaction, error) {
	date, err := time.Parse(core.DateLayout, e.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse event date %q: %w", e.Date, err)
	}
	return core.Transaction{
		ID:       e.TransactionID,
		OwnerID:  e.OwnerID,
		Kind:     core.Kind(e.Kind),
		Amount:   core.Money{Cents: e.AmountCents},
		Category: e.Category,
		Date:     date,
	}, nil
}

func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes and sanity checks an event body.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Type {
	case EventTransactionCreated, EventTransactionDeleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.TransactionID <= 0 {
		return nil, fmt.Errorf("event %s has no transaction id", e.EventID)
	}
	return &e, nil
}
