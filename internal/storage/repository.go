package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"finbot/internal/core"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ExportHeader is the first line of every export.
var ExportHeader = []string{"data", "tipo", "valor", "categoria"}

type SQLRepository struct {
	db     *sql.DB
	driver string
	loc    *time.Location
	now    func() time.Time
}

// Option customizes a SQLRepository.
type Option func(*SQLRepository)

// WithLocation sets the time zone that defines "today".
func WithLocation(loc *time.Location) Option {
	return func(r *SQLRepository) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *SQLRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// Open connects to the database named by databaseURL, runs migrations and
// returns a ready repository.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*SQLRepository, error) {
	driver, dsn, err := ParseDSN(databaseURL)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		if dir := filepath.Dir(sqlitePath(dsn)); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
		dsn = withSQLitePragmas(dsn)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite allows one writer; a single connection serializes writes.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(driver, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLRepository{
		db:     db,
		driver: driver,
		loc:    time.Local,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(repo)
	}

	return repo, nil
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks connectivity, used by readiness probes.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Driver returns the database/sql driver name in use.
func (r *SQLRepository) Driver() string {
	return r.driver
}

func (r *SQLRepository) today() time.Time {
	return core.Day(r.now().In(r.loc))
}

// RegisterUser records ownerID in the broadcast list. Calling it again is a no-op.
func (r *SQLRepository) RegisterUser(ctx context.Context, ownerID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (owner_id) VALUES ($1) ON CONFLICT (owner_id) DO NOTHING`, ownerID)
	if err != nil {
		return fmt.Errorf("register user %d: %w", ownerID, err)
	}
	return nil
}

// ListUsers returns every registered owner id.
func (r *SQLRepository) ListUsers(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT owner_id FROM users ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddTransaction stores a transaction dated today and returns it with its id.
func (r *SQLRepository) AddTransaction(ctx context.Context, nt core.NewTransaction) (core.Transaction, error) {
	if err := nt.Validate(); err != nil {
		return core.Transaction{}, err
	}

	date := r.today()
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO transactions (owner_id, kind, amount_cents, category, date)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		nt.OwnerID, string(nt.Kind), nt.Amount.Cents, nt.Category, date.Format(core.DateLayout),
	).Scan(&id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", id,
		"owner_id", nt.OwnerID,
		"kind", nt.Kind,
		"amount_cents", nt.Amount.Cents,
		"category", nt.Category)

	return core.Transaction{
		ID:       id,
		OwnerID:  nt.OwnerID,
		Kind:     nt.Kind,
		Amount:   nt.Amount,
		Category: nt.Category,
		Date:     date,
	}, nil
}

// Summary returns totals grouped by kind and category for the trailing
// windowDays days, today included.
func (r *SQLRepository) Summary(ctx context.Context, ownerID int64, windowDays int) ([]core.CategoryTotal, error) {
	if windowDays < 0 {
		windowDays = 0
	}
	since := r.today().AddDate(0, 0, -windowDays)

	rows, err := r.db.QueryContext(ctx,
		`SELECT kind, category, COALESCE(SUM(amount_cents), 0)
		 FROM transactions
		 WHERE owner_id = $1 AND date >= $2
		 GROUP BY kind, category
		 ORDER BY kind, category`,
		ownerID, since.Format(core.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryTotal
	for rows.Next() {
		var (
			kind  string
			ct    core.CategoryTotal
			total int64
		)
		if err := rows.Scan(&kind, &ct.Category, &total); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		ct.Kind = core.Kind(kind)
		ct.Total = core.Money{Cents: total}
		out = append(out, ct)
	}
	return out, rows.Err()
}

// Balance returns all-time income minus expense.
func (r *SQLRepository) Balance(ctx context.Context, ownerID int64) (core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN kind = 'income' THEN amount_cents ELSE -amount_cents END), 0)
		 FROM transactions WHERE owner_id = $1`, ownerID).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("query balance: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

// MonthlyTotals returns income and expense sums for the current calendar month.
func (r *SQLRepository) MonthlyTotals(ctx context.Context, ownerID int64) (core.MonthTotals, error) {
	today := r.today()
	start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, r.loc)
	end := start.AddDate(0, 1, 0)

	rows, err := r.db.QueryContext(ctx,
		`SELECT kind, COALESCE(SUM(amount_cents), 0)
		 FROM transactions
		 WHERE owner_id = $1 AND date >= $2 AND date < $3
		 GROUP BY kind`,
		ownerID, start.Format(core.DateLayout), end.Format(core.DateLayout))
	if err != nil {
		return core.MonthTotals{}, fmt.Errorf("query monthly totals: %w", err)
	}
	defer rows.Close()

	var totals core.MonthTotals
	for rows.Next() {
		var (
			kind  string
			cents int64
		)
		if err := rows.Scan(&kind, &cents); err != nil {
			return core.MonthTotals{}, fmt.Errorf("scan monthly totals: %w", err)
		}
		switch core.Kind(kind) {
		case core.KindIncome:
			totals.Income = core.Money{Cents: cents}
		case core.KindExpense:
			totals.Expense = core.Money{Cents: cents}
		}
	}
	return totals, rows.Err()
}

// ListRecent returns up to limit transactions, newest first.
func (r *SQLRepository) ListRecent(ctx context.Context, ownerID int64, limit int) ([]core.Transaction, error) {
	if limit <= 0 {
		return nil, nil
	}
	return r.queryTransactions(ctx,
		`SELECT id, owner_id, kind, amount_cents, category, date
		 FROM transactions WHERE owner_id = $1
		 ORDER BY date DESC, id DESC LIMIT $2`, ownerID, limit)
}

// DeleteTransaction removes id when it belongs to ownerID and returns the
// removed row. ok is false for a missing or foreign id, which is not an error.
func (r *SQLRepository) DeleteTransaction(ctx context.Context, id, ownerID int64) (tx core.Transaction, ok bool, err error) {
	txs, err := r.queryTransactions(ctx,
		`DELETE FROM transactions WHERE id = $1 AND owner_id = $2
		 RETURNING id, owner_id, kind, amount_cents, category, date`, id, ownerID)
	if err != nil {
		return core.Transaction{}, false, fmt.Errorf("delete transaction %d: %w", id, err)
	}
	if len(txs) == 0 {
		return core.Transaction{}, false, nil
	}
	slog.InfoContext(ctx, "Transaction deleted", "id", id, "owner_id", ownerID)
	return txs[0], true, nil
}

// Export renders all of ownerID's transactions as semicolon-delimited text,
// newest first. ok is false when there is nothing to export.
func (r *SQLRepository) Export(ctx context.Context, ownerID int64) (data []byte, ok bool, err error) {
	txs, err := r.queryTransactions(ctx,
		`SELECT id, owner_id, kind, amount_cents, category, date
		 FROM transactions WHERE owner_id = $1
		 ORDER BY date DESC, id DESC`, ownerID)
	if err != nil {
		return nil, false, err
	}
	if len(txs) == 0 {
		return nil, false, nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'
	if err := w.Write(ExportHeader); err != nil {
		return nil, false, fmt.Errorf("write export header: %w", err)
	}
	for _, t := range txs {
		rec := []string{t.Date.Format(core.DateLayout), t.Kind.Label(), t.Amount.String(), t.Category}
		if err := w.Write(rec); err != nil {
			return nil, false, fmt.Errorf("write export row %d: %w", t.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, false, fmt.Errorf("flush export: %w", err)
	}
	return buf.Bytes(), true, nil
}

func (r *SQLRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			t     core.Transaction
			kind  string
			cents int64
			date  sqlDate
		)
		if err := rows.Scan(&t.ID, &t.OwnerID, &kind, &cents, &t.Category, &date); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Kind = core.Kind(kind)
		t.Amount = core.Money{Cents: cents}
		t.Date = date.in(r.loc)
		out = append(out, t)
	}
	return out, rows.Err()
}

// sqlDate scans a calendar day stored as DATE (postgres) or TEXT (sqlite).
type sqlDate struct {
	y int
	m time.Month
	d int
}

func (s *sqlDate) Scan(src any) error {
	var str string
	switch v := src.(type) {
	case time.Time:
		s.y, s.m, s.d = v.Date()
		return nil
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		return fmt.Errorf("unsupported date type %T", src)
	}
	if len(str) < len(core.DateLayout) {
		return fmt.Errorf("invalid date %q", str)
	}
	t, err := time.Parse(core.DateLayout, str[:len(core.DateLayout)])
	if err != nil {
		return fmt.Errorf("parse date %q: %w", str, err)
	}
	s.y, s.m, s.d = t.Date()
	return nil
}

func (s sqlDate) in(loc *time.Location) time.Time {
	return time.Date(s.y, s.m, s.d, 0, 0, 0, 0, loc)
}
