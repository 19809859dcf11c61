package services

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"finbot/internal/amqp"
	"finbot/internal/core"
	applog "finbot/internal/log"
	"finbot/internal/storage"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.TransactionEvent
	err    error
}

func (p *recordingPublisher) PublishTransactionEvent(_ context.Context, ev *amqp.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func testLogger() *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Output = io.Discard
	return applog.New(cfg)
}

func newTestService(t *testing.T, pub EventPublisher) *LedgerService {
	t.Helper()
	now := func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }
	repo, err := storage.Open(context.Background(),
		"sqlite:///"+filepath.Join(t.TempDir(), "ledger.db"),
		storage.WithLocation(time.UTC), storage.WithClock(now))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return NewLedgerService(repo, pub, testLogger())
}

func TestLedgerService_AddPublishesCreated(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newTestService(t, pub)
	ctx := context.Background()

	tx, err := svc.AddTransaction(ctx, core.NewTransaction{
		OwnerID: 7, Kind: core.KindExpense, Amount: core.Money{Cents: 2500}, Category: "mercado",
	})
	if err != nil {
		t.Fatalf("AddTransaction() error = %v", err)
	}

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.Type != amqp.EventTransactionCreated || ev.TransactionID != tx.ID || ev.OwnerID != 7 {
		t.Errorf("event = %+v", ev)
	}
	if ev.AmountCents != 2500 || ev.Category != "mercado" || ev.Date != "2026-10-16" {
		t.Errorf("event payload = %+v", ev)
	}
}

func TestLedgerService_DeletePublishesDeleted(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newTestService(t, pub)
	ctx := context.Background()

	tx, err := svc.AddTransaction(ctx, core.NewTransaction{
		OwnerID: 7, Kind: core.KindIncome, Amount: core.Money{Cents: 10000}, Category: "salario",
	})
	if err != nil {
		t.Fatalf("AddTransaction() error = %v", err)
	}

	ok, err := svc.DeleteTransaction(ctx, tx.ID, 8)
	if err != nil || ok {
		t.Fatalf("foreign DeleteTransaction() = %v, %v; want false, nil", ok, err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("foreign delete published an event")
	}

	ok, err = svc.DeleteTransaction(ctx, tx.ID, 7)
	if err != nil || !ok {
		t.Fatalf("DeleteTransaction() = %v, %v; want true, nil", ok, err)
	}
	if len(pub.events) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.events))
	}
	ev := pub.events[1]
	if ev.Type != amqp.EventTransactionDeleted || ev.TransactionID != tx.ID || ev.Kind != string(core.KindIncome) {
		t.Errorf("deleted event = %+v", ev)
	}
}

func TestLedgerService_PublishFailureDoesNotFail(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newTestService(t, pub)
	ctx := context.Background()

	if _, err := svc.AddTransaction(ctx, core.NewTransaction{
		OwnerID: 1, Kind: core.KindExpense, Amount: core.Money{Cents: 100}, Category: "cafe",
	}); err != nil {
		t.Fatalf("AddTransaction() error = %v, want nil despite publish failure", err)
	}

	bal, err := svc.Balance(ctx, 1)
	if err != nil || bal.Cents != -100 {
		t.Errorf("Balance() = %d, %v; want -100", bal.Cents, err)
	}
}

func TestLedgerService_NilPublisher(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	tx, err := svc.AddTransaction(ctx, core.NewTransaction{
		OwnerID: 1, Kind: core.KindExpense, Amount: core.Money{Cents: 100}, Category: "cafe",
	})
	if err != nil {
		t.Fatalf("AddTransaction() error = %v", err)
	}
	if ok, err := svc.DeleteTransaction(ctx, tx.ID, 1); err != nil || !ok {
		t.Errorf("DeleteTransaction() = %v, %v", ok, err)
	}
}

func TestLedgerService_InvalidTransaction(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newTestService(t, pub)

	_, err := svc.AddTransaction(context.Background(), core.NewTransaction{
		OwnerID: 1, Kind: core.KindExpense, Amount: core.Money{Cents: 0}, Category: "cafe",
	})
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("AddTransaction() error = %v, want ErrInvalidAmount", err)
	}
	if len(pub.events) != 0 {
		t.Errorf("invalid transaction published %d events", len(pub.events))
	}
}
