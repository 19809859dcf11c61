package worker

import (
	"context"
	"fmt"

	"finbot/internal/amqp"
	applog "finbot/internal/log"
	"finbot/internal/sheets"
)

// MirrorWorker applies ledger events to the spreadsheet mirror.
type MirrorWorker struct {
	mirror sheets.Mirror
	logger *applog.Logger
}

func NewMirrorWorker(mirror sheets.Mirror, logger *applog.Logger) *MirrorWorker {
	return &MirrorWorker{
		mirror: mirror,
		logger: logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleEvent processes a single ledger event. A returned error makes the
// consumer requeue the delivery.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev *amqp.TransactionEvent) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		applog.FieldEventType, ev.Type,
		applog.FieldTransactionID, ev.TransactionID,
		"event_id", ev.EventID)

	switch ev.Type {
	case amqp.EventTransactionCreated:
		tx, err := ev.Transaction()
		if err != nil {
			return fmt.Errorf("decode transaction %d: %w", ev.TransactionID, err)
		}
		if err := w.mirror.AppendTransaction(ctx, tx); err != nil {
			return fmt.Errorf("mirror transaction %d: %w", tx.ID, err)
		}
		return nil

	case amqp.EventTransactionDeleted:
		found, err := w.mirror.RemoveTransaction(ctx, ev.TransactionID)
		if err != nil {
			return fmt.Errorf("remove transaction %d: %w", ev.TransactionID, err)
		}
		if !found {
			w.logger.WarnContext(ctx, "Deleted transaction was not mirrored",
				applog.FieldTransactionID, ev.TransactionID)
		}
		return nil

	default:
		w.logger.WarnContext(ctx, "Ignoring unknown event type", applog.FieldEventType, ev.Type)
		return nil
	}
}
