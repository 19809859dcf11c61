package services

import (
	"context"
	"fmt"

	"finbot/internal/amqp"
	"finbot/internal/core"
	applog "finbot/internal/log"
)

// Store is the persistence the ledger needs.
type Store interface {
	RegisterUser(ctx context.Context, ownerID int64) error
	ListUsers(ctx context.Context) ([]int64, error)
	AddTransaction(ctx context.Context, nt core.NewTransaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id, ownerID int64) (core.Transaction, bool, error)
	Summary(ctx context.Context, ownerID int64, windowDays int) ([]core.CategoryTotal, error)
	Balance(ctx context.Context, ownerID int64) (core.Money, error)
	MonthlyTotals(ctx context.Context, ownerID int64) (core.MonthTotals, error)
	ListRecent(ctx context.Context, ownerID int64, limit int) ([]core.Transaction, error)
	Export(ctx context.Context, ownerID int64) ([]byte, bool, error)
	Ping(ctx context.Context) error
}

// EventPublisher announces ledger changes to downstream consumers.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, ev *amqp.TransactionEvent) error
}

// LedgerService orchestrates ledger operations across storage and AMQP.
// The database is the source of truth: a failed publish is logged and the
// operation still succeeds.
type LedgerService struct {
	store     Store
	publisher EventPublisher
	logger    *applog.Logger
}

// NewLedgerService wires a store and an optional publisher (nil disables
// events).
func NewLedgerService(store Store, publisher EventPublisher, logger *applog.Logger) *LedgerService {
	return &LedgerService{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(applog.ComponentLedger),
	}
}

func (s *LedgerService) RegisterUser(ctx context.Context, ownerID int64) error {
	return s.store.RegisterUser(ctx, ownerID)
}

func (s *LedgerService) ListUsers(ctx context.Context) ([]int64, error) {
	return s.store.ListUsers(ctx)
}

// AddTransaction records a transaction dated today and publishes a created
// event.
func (s *LedgerService) AddTransaction(ctx context.Context, nt core.NewTransaction) (core.Transaction, error) {
	tx, err := s.store.AddTransaction(ctx, nt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("add transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Transaction recorded",
		applog.NewFields().
			WithOperation(applog.OpCreate).
			WithTransaction(tx.ID, string(tx.Kind), tx.Amount.Cents, tx.Category).
			ToSlice()...)

	s.publish(ctx, amqp.NewTransactionCreated(tx))
	return tx, nil
}

// DeleteTransaction removes one of ownerID's transactions. ok is false when
// the id is unknown or belongs to someone else.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id, ownerID int64) (bool, error) {
	tx, ok, err := s.store.DeleteTransaction(ctx, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete transaction: %w", err)
	}
	if !ok {
		return false, nil
	}

	s.publish(ctx, amqp.NewTransactionDeleted(tx))
	return true, nil
}

func (s *LedgerService) Summary(ctx context.Context, ownerID int64, windowDays int) ([]core.CategoryTotal, error) {
	return s.store.Summary(ctx, ownerID, windowDays)
}

func (s *LedgerService) Balance(ctx context.Context, ownerID int64) (core.Money, error) {
	return s.store.Balance(ctx, ownerID)
}

func (s *LedgerService) MonthlyTotals(ctx context.Context, ownerID int64) (core.MonthTotals, error) {
	return s.store.MonthlyTotals(ctx, ownerID)
}

func (s *LedgerService) ListRecent(ctx context.Context, ownerID int64, limit int) ([]core.Transaction, error) {
	return s.store.ListRecent(ctx, ownerID, limit)
}

func (s *LedgerService) Export(ctx context.Context, ownerID int64) ([]byte, bool, error) {
	return s.store.Export(ctx, ownerID)
}

func (s *LedgerService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *LedgerService) publish(ctx context.Context, ev *amqp.TransactionEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTransactionEvent(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			applog.FieldError, err,
			applog.FieldEventType, ev.Type,
			applog.FieldTransactionID, ev.TransactionID)
	}
}
