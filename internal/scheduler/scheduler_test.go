package scheduler

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"finbot/internal/bot"
	"finbot/internal/core"
	applog "finbot/internal/log"
)

type fakeReporter struct {
	users      []int64
	listErr    error
	summaries  map[int64][]core.CategoryTotal
	balances   map[int64]core.Money
	failReport map[int64]bool
}

func (f *fakeReporter) ListUsers(context.Context) ([]int64, error) { return f.users, f.listErr }

func (f *fakeReporter) Summary(_ context.Context, owner int64, _ int) ([]core.CategoryTotal, error) {
	if f.failReport[owner] {
		return nil, errors.New("query failed")
	}
	return f.summaries[owner], nil
}

func (f *fakeReporter) Balance(_ context.Context, owner int64) (core.Money, error) {
	if f.failReport[owner] {
		return core.Money{}, errors.New("query failed")
	}
	return f.balances[owner], nil
}

type sent struct {
	chatID int64
	reply  bot.Reply
}

type fakeNotifier struct {
	sent     []sent
	failFor  map[int64]bool
	attempts int
}

func (f *fakeNotifier) Send(_ context.Context, chatID int64, reply bot.Reply) error {
	f.attempts++
	if f.failFor[chatID] {
		return errors.New("Forbidden: bot was blocked by the user")
	}
	f.sent = append(f.sent, sent{chatID, reply})
	return nil
}

func testLogger() *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Output = io.Discard
	return applog.New(cfg)
}

func newTestScheduler(t *testing.T, r Reporter, n Notifier) *Scheduler {
	t.Helper()
	s, err := New(r, n, Config{
		WeeklyDigestSpec:   "0 8 * * MON",
		MonthlyBalanceSpec: "0 8 1 * *",
		Location:           time.UTC,
		SummaryWindowDays:  7,
	}, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestSendWeeklyDigest(t *testing.T) {
	reporter := &fakeReporter{
		users: []int64{1, 2, 3, 4},
		summaries: map[int64][]core.CategoryTotal{
			1: {{Kind: core.KindExpense, Category: "market", Total: core.Money{Cents: 2500}}},
			3: {{Kind: core.KindIncome, Category: "salary", Total: core.Money{Cents: 10000}}},
			4: {{Kind: core.KindIncome, Category: "salary", Total: core.Money{Cents: 10000}}},
		},
		failReport: map[int64]bool{4: true},
	}
	notifier := &fakeNotifier{}
	s := newTestScheduler(t, reporter, notifier)

	res, err := s.SendWeeklyDigest(context.Background())
	if err != nil {
		t.Fatalf("SendWeeklyDigest() error = %v", err)
	}

	want := Result{Recipients: 4, Sent: 2, Skipped: 1, Failed: 1}
	if res != want {
		t.Errorf("result = %+v, want %+v", res, want)
	}
	if len(notifier.sent) != 2 || notifier.sent[0].chatID != 1 || notifier.sent[1].chatID != 3 {
		t.Fatalf("sent = %+v", notifier.sent)
	}
	first := notifier.sent[0].reply
	if !first.Markdown || !strings.HasPrefix(first.Text, "📊 *Resumo semanal:*") {
		t.Errorf("digest = %+v", first)
	}
}

func TestSendMonthlyBalance_IsolatesDeliveryFailures(t *testing.T) {
	reporter := &fakeReporter{
		users: []int64{1, 2, 3},
		balances: map[int64]core.Money{
			1: {Cents: 7500},
			2: {Cents: -100},
			3: {Cents: 0},
		},
	}
	notifier := &fakeNotifier{failFor: map[int64]bool{2: true}}
	s := newTestScheduler(t, reporter, notifier)

	res, err := s.SendMonthlyBalance(context.Background())
	if err != nil {
		t.Fatalf("SendMonthlyBalance() error = %v", err)
	}

	want := Result{Recipients: 3, Sent: 2, Failed: 1}
	if res != want {
		t.Errorf("result = %+v, want %+v", res, want)
	}
	if notifier.attempts != 3 {
		t.Errorf("attempts = %d, want 3 (failure must not stop the loop)", notifier.attempts)
	}
	if got := notifier.sent[0].reply.Text; got != "🟢 Seu saldo atual neste início de mês é: R$75.00" {
		t.Errorf("message = %q", got)
	}
}

func TestBroadcast_ListUsersFailure(t *testing.T) {
	reporter := &fakeReporter{listErr: errors.New("connection refused")}
	s := newTestScheduler(t, reporter, &fakeNotifier{})

	if _, err := s.SendMonthlyBalance(context.Background()); err == nil {
		t.Error("SendMonthlyBalance() error = nil, want list users failure")
	}
}

func TestBroadcast_CancelledContextSkipsRest(t *testing.T) {
	reporter := &fakeReporter{users: []int64{1, 2}, balances: map[int64]core.Money{}}
	notifier := &fakeNotifier{}
	s := newTestScheduler(t, reporter, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.SendMonthlyBalance(ctx)
	if err != nil {
		t.Fatalf("SendMonthlyBalance() error = %v", err)
	}
	if res.Sent != 0 || res.Skipped != 2 {
		t.Errorf("result = %+v, want all skipped", res)
	}
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New(&fakeReporter{}, &fakeNotifier{}, Config{
		WeeklyDigestSpec:   "every monday",
		MonthlyBalanceSpec: "0 8 1 * *",
	}, testLogger())
	if err == nil || !strings.Contains(err.Error(), JobWeeklyDigest) {
		t.Errorf("New() error = %v, want weekly digest spec error", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := newTestScheduler(t, &fakeReporter{}, &fakeNotifier{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
