package worker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"finbot/internal/amqp"
	"finbot/internal/core"
	applog "finbot/internal/log"
	"finbot/internal/sheets/memory"
)

func testLogger() *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Output = io.Discard
	return applog.New(cfg)
}

func sampleTx() core.Transaction {
	return core.Transaction{
		ID: 11, OwnerID: 3, Kind: core.KindExpense, Amount: core.Money{Cents: 4200},
		Category: "mercado", Date: time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestMirrorWorker_CreatedThenDeleted(t *testing.T) {
	mirror := memory.New()
	w := NewMirrorWorker(mirror, testLogger())
	ctx := context.Background()

	created := amqp.NewTransactionCreated(sampleTx())
	for i := 0; i < 2; i++ {
		if err := w.HandleEvent(ctx, created); err != nil {
			t.Fatalf("HandleEvent(created) error = %v", err)
		}
	}
	rows := mirror.Rows()
	if len(rows) != 1 {
		t.Fatalf("rows after redelivery = %v, want 1", rows)
	}
	if rows[0][4] != "42.00" || rows[0][2] != "2026-10-02" {
		t.Errorf("row = %v", rows[0])
	}

	if err := w.HandleEvent(ctx, amqp.NewTransactionDeleted(sampleTx())); err != nil {
		t.Fatalf("HandleEvent(deleted) error = %v", err)
	}
	if rows := mirror.Rows(); len(rows) != 0 {
		t.Errorf("rows after delete = %v, want none", rows)
	}
}

func TestMirrorWorker_DeleteUnknownIsNoop(t *testing.T) {
	w := NewMirrorWorker(memory.New(), testLogger())
	if err := w.HandleEvent(context.Background(), amqp.NewTransactionDeleted(sampleTx())); err != nil {
		t.Errorf("HandleEvent() error = %v, want nil", err)
	}
}

func TestMirrorWorker_BadDate(t *testing.T) {
	w := NewMirrorWorker(memory.New(), testLogger())
	ev := amqp.NewTransactionCreated(sampleTx())
	ev.Date = "02/10/2026"
	if err := w.HandleEvent(context.Background(), ev); err == nil {
		t.Error("HandleEvent() error = nil, want decode error")
	}
}

type failingMirror struct{ err error }

func (f failingMirror) AppendTransaction(context.Context, core.Transaction) error { return f.err }
func (f failingMirror) RemoveTransaction(context.Context, int64) (bool, error) {
	return false, f.err
}

func TestMirrorWorker_PropagatesMirrorErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	w := NewMirrorWorker(failingMirror{err: boom}, testLogger())
	ctx := context.Background()

	if err := w.HandleEvent(ctx, amqp.NewTransactionCreated(sampleTx())); !errors.Is(err, boom) {
		t.Errorf("created error = %v, want %v", err, boom)
	}
	if err := w.HandleEvent(ctx, amqp.NewTransactionDeleted(sampleTx())); !errors.Is(err, boom) {
		t.Errorf("deleted error = %v, want %v", err, boom)
	}
}
