package bot

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"finbot/internal/cache"
	"finbot/internal/core"
	applog "finbot/internal/log"
)

// fakeLedger keeps transactions in memory; every row is dated today.
type fakeLedger struct {
	users  map[int64]bool
	txs    []core.Transaction
	nextID int64
	err    error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{users: make(map[int64]bool)}
}

func (f *fakeLedger) RegisterUser(_ context.Context, owner int64) error {
	if f.err != nil {
		return f.err
	}
	f.users[owner] = true
	return nil
}

func (f *fakeLedger) AddTransaction(_ context.Context, nt core.NewTransaction) (core.Transaction, error) {
	if err := nt.Validate(); err != nil {
		return core.Transaction{}, err
	}
	f.nextID++
	tx := core.Transaction{
		ID: f.nextID, OwnerID: nt.OwnerID, Kind: nt.Kind, Amount: nt.Amount,
		Category: nt.Category, Date: time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
	}
	f.txs = append(f.txs, tx)
	return tx, nil
}

func (f *fakeLedger) DeleteTransaction(_ context.Context, id, owner int64) (bool, error) {
	for i, tx := range f.txs {
		if tx.ID == id && tx.OwnerID == owner {
			f.txs = append(f.txs[:i], f.txs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) Summary(_ context.Context, owner int64, _ int) ([]core.CategoryTotal, error) {
	var out []core.CategoryTotal
	for _, tx := range f.txs {
		if tx.OwnerID != owner {
			continue
		}
		out = append(out, core.CategoryTotal{Kind: tx.Kind, Category: tx.Category, Total: tx.Amount})
	}
	return out, nil
}

func (f *fakeLedger) Balance(_ context.Context, owner int64) (core.Money, error) {
	t, _ := f.MonthlyTotals(context.Background(), owner)
	return t.Income.Sub(t.Expense), nil
}

func (f *fakeLedger) MonthlyTotals(_ context.Context, owner int64) (core.MonthTotals, error) {
	var t core.MonthTotals
	for _, tx := range f.txs {
		if tx.OwnerID != owner {
			continue
		}
		if tx.Kind == core.KindIncome {
			t.Income = t.Income.Add(tx.Amount)
		} else {
			t.Expense = t.Expense.Add(tx.Amount)
		}
	}
	return t, nil
}

func (f *fakeLedger) ListRecent(_ context.Context, owner int64, limit int) ([]core.Transaction, error) {
	var out []core.Transaction
	for i := len(f.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if f.txs[i].OwnerID == owner {
			out = append(out, f.txs[i])
		}
	}
	return out, nil
}

func (f *fakeLedger) Export(_ context.Context, owner int64) ([]byte, bool, error) {
	recent, _ := f.ListRecent(context.Background(), owner, len(f.txs))
	if len(recent) == 0 {
		return nil, false, nil
	}
	return []byte("data;tipo;valor;categoria\n"), true, nil
}

type harness struct {
	h        *Handler
	ledger   *fakeLedger
	sessions *cache.LRUCache[int64, Session]
	now      time.Time
}

const (
	chatID = int64(100)
	userID = int64(100)
)

func newHarness(t *testing.T) *harness {
	t.Helper()
	hs := &harness{ledger: newFakeLedger(), now: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)}
	hs.sessions = cache.NewLRUCache[int64, Session](100, 10*time.Minute, cache.WithClock(func() time.Time { return hs.now }))

	logCfg := applog.DefaultConfig()
	logCfg.Output = io.Discard
	hs.h = NewHandler(hs.ledger, hs.sessions, Config{
		DashboardURL:      "https://dash.example.com/",
		SummaryWindowDays: 7,
		RecentLimit:       5,
	}, applog.New(logCfg))
	return hs
}

func (hs *harness) command(name string, args ...string) []Reply {
	return hs.h.Handle(context.Background(), Request{ChatID: chatID, UserID: userID, Command: name, Args: args})
}

func (hs *harness) press(data string) []Reply {
	return hs.h.Handle(context.Background(), Request{ChatID: chatID, UserID: userID, Callback: data})
}

func (hs *harness) say(s string) []Reply {
	return hs.h.Handle(context.Background(), Request{ChatID: chatID, UserID: userID, Text: s})
}

func (hs *harness) state() State {
	s, _ := hs.sessions.Get(chatID)
	return s.State
}

func onlyText(t *testing.T, replies []Reply) string {
	t.Helper()
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1: %+v", len(replies), replies)
	}
	return replies[0].Text
}

func TestHandle_StartRegistersUser(t *testing.T) {
	hs := newHarness(t)
	for _, cmd := range []string{"iniciar", "start", "ajuda", "help"} {
		got := onlyText(t, hs.command(cmd))
		if !strings.Contains(got, "/registrar gasto 25 mercado") {
			t.Errorf("/%s reply lacks usage example: %q", cmd, got)
		}
	}
	if !hs.ledger.users[userID] {
		t.Error("caller was not registered")
	}
}

func TestHandle_Register(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		want     string
		recorded bool
	}{
		{"expense", []string{"gasto", "25", "Mercado"}, "✅ Gasto de R$25.00 em 'mercado' registrado com sucesso!", true},
		{"income with comma", []string{"receita", "100,5", "salario"}, "✅ Receita de R$100.50 em 'salario' registrado com sucesso!", true},
		{"missing args", []string{"gasto", "25"}, msgRegisterUsage, false},
		{"too many args", []string{"gasto", "25", "super", "mercado"}, msgRegisterUsage, false},
		{"bad amount", []string{"gasto", "vinte", "mercado"}, msgInvalidAmount, false},
		{"negative amount", []string{"gasto", "-5", "mercado"}, msgInvalidAmount, false},
		{"bad kind", []string{"transferencia", "10", "banco"}, msgInvalidKind, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := newHarness(t)
			replies := hs.command("registrar", tt.args...)
			if len(replies) == 0 || replies[0].Text != tt.want {
				t.Fatalf("reply = %+v, want %q", replies, tt.want)
			}
			if got := len(hs.ledger.txs) == 1; got != tt.recorded {
				t.Errorf("recorded = %v, want %v", got, tt.recorded)
			}
		})
	}
}

func TestHandle_BudgetWarning(t *testing.T) {
	hs := newHarness(t)

	replies := hs.command("registrar", "gasto", "50", "mercado")
	if len(replies) != 1 {
		t.Fatalf("expense without income must not warn, got %d replies", len(replies))
	}

	hs.command("registrar", "receita", "100", "salario")

	replies = hs.command("registrar", "gasto", "29.99", "lazer")
	if len(replies) != 1 {
		t.Fatalf("79.99%% spent must not warn, got %+v", replies)
	}

	replies = hs.command("registrar", "gasto", "0.01", "cafe")
	if len(replies) != 2 {
		t.Fatalf("80%% spent must warn, got %d replies", len(replies))
	}
	if !strings.Contains(replies[1].Text, "atingiram 80% da sua receita") {
		t.Errorf("warning = %q", replies[1].Text)
	}
}

func TestHandle_SummaryBalanceExport(t *testing.T) {
	hs := newHarness(t)

	if got := onlyText(t, hs.command("resumo")); got != msgNoTransactions {
		t.Errorf("empty summary = %q", got)
	}
	if got := onlyText(t, hs.command("planilha")); got != msgNothingToExport {
		t.Errorf("empty export = %q", got)
	}

	hs.command("registrar", "gasto", "25", "market")
	if got := onlyText(t, hs.command("saldo")); got != "🔴 Seu saldo atual é: R$-25.00" {
		t.Errorf("balance = %q", got)
	}
	hs.command("registrar", "receita", "100", "salary")
	if got := onlyText(t, hs.command("saldo")); got != "🟢 Seu saldo atual é: R$75.00" {
		t.Errorf("balance = %q", got)
	}

	summary := hs.command("resumo")
	if len(summary) != 1 || !summary[0].Markdown {
		t.Fatalf("summary = %+v, want one Markdown reply", summary)
	}
	for _, want := range []string{"últimos 7 dias", "Gasto - Market: R$25.00", "Receita - Salary: R$100.00"} {
		if !strings.Contains(summary[0].Text, want) {
			t.Errorf("summary %q lacks %q", summary[0].Text, want)
		}
	}

	export := hs.command("planilha")
	if len(export) != 1 || export[0].Document == nil {
		t.Fatalf("export = %+v, want a document", export)
	}
	if export[0].Document.Name != "transacoes.csv" {
		t.Errorf("document name = %q", export[0].Document.Name)
	}
}

func TestHandle_RecentAndDelete(t *testing.T) {
	hs := newHarness(t)
	hs.command("registrar", "gasto", "10", "cafe")
	hs.command("registrar", "gasto", "20", "bar_do_ze")

	replies := hs.command("ultimas")
	if len(replies) != 1 {
		t.Fatalf("got %d replies", len(replies))
	}
	r := replies[0]
	if len(r.Buttons) != 2 || r.Buttons[0][0].Data != "del:2" || r.Buttons[1][0].Data != "del:1" {
		t.Fatalf("buttons = %+v, want newest first", r.Buttons)
	}
	if !strings.Contains(r.Text, "bar\\_do\\_ze") {
		t.Errorf("recent list does not escape markdown: %q", r.Text)
	}

	// another user cannot delete
	foreign := hs.h.Handle(context.Background(), Request{ChatID: 200, UserID: 200, Callback: "del:2"})
	if onlyText(t, foreign) != msgNotFound {
		t.Errorf("foreign delete reply = %+v", foreign)
	}
	if len(hs.ledger.txs) != 2 {
		t.Fatal("foreign delete removed a row")
	}

	if got := onlyText(t, hs.press("del:2")); got != "🗑 Transação #2 apagada." {
		t.Errorf("delete reply = %q", got)
	}
	if got := onlyText(t, hs.press("del:2")); got != msgNotFound {
		t.Errorf("second delete reply = %q", got)
	}
	if got := onlyText(t, hs.press("del:abc")); got != msgNotFound {
		t.Errorf("malformed delete reply = %q", got)
	}
}

func TestHandle_Dashboard(t *testing.T) {
	hs := newHarness(t)
	got := onlyText(t, hs.command("painel"))
	if !strings.HasSuffix(got, "https://dash.example.com/?user_id=100") {
		t.Errorf("dashboard reply = %q", got)
	}
}

func TestHandle_InteractiveFlow(t *testing.T) {
	hs := newHarness(t)

	replies := hs.command("novo")
	if len(replies) != 1 || len(replies[0].Buttons) != 1 || len(replies[0].Buttons[0]) != 2 {
		t.Fatalf("/novo = %+v, want kind buttons", replies)
	}

	replies = hs.press("kind:expense")
	if hs.state() != StateAwaitingCategory || len(replies[0].Buttons) == 0 {
		t.Fatalf("after kind: state %s replies %+v", hs.state(), replies)
	}

	if got := onlyText(t, hs.say("mercado")); got != msgUseButtons {
		t.Errorf("text while awaiting category = %q", got)
	}
	if hs.state() != StateAwaitingCategory {
		t.Fatalf("text while awaiting category changed state to %s", hs.state())
	}

	hs.press("cat:mercado")
	if hs.state() != StateAwaitingAmount {
		t.Fatalf("after category: state %s", hs.state())
	}

	if got := onlyText(t, hs.say("abc")); got != msgFlowBadAmount {
		t.Errorf("bad amount reply = %q", got)
	}
	if hs.state() != StateAwaitingAmount {
		t.Fatalf("bad amount changed state to %s", hs.state())
	}

	replies = hs.say("12,50")
	if replies[0].Text != "✅ Gasto de R$12.50 em 'mercado' registrado com sucesso!" {
		t.Errorf("confirmation = %q", replies[0].Text)
	}
	if hs.state() != StateIdle {
		t.Errorf("state after entry = %s, want idle", hs.state())
	}
	if len(hs.ledger.txs) != 1 {
		t.Errorf("recorded %d transactions, want 1", len(hs.ledger.txs))
	}
}

func TestHandle_CustomCategoryFlow(t *testing.T) {
	hs := newHarness(t)
	hs.press("kind:receita")

	if got := onlyText(t, hs.press("cat:*")); got != msgAskCategoryName {
		t.Errorf("custom category prompt = %q", got)
	}
	if hs.state() != StateAwaitingCustomCategoryName {
		t.Fatalf("state = %s", hs.state())
	}

	if got := onlyText(t, hs.say("   ")); got != msgInvalidCategory {
		t.Errorf("blank name reply = %q", got)
	}
	hs.say("  Venda   de Bolo ")
	if hs.state() != StateAwaitingAmount {
		t.Fatalf("state after name = %s", hs.state())
	}

	hs.say("40")
	if len(hs.ledger.txs) != 1 || hs.ledger.txs[0].Category != "venda de bolo" || hs.ledger.txs[0].Kind != core.KindIncome {
		t.Errorf("recorded = %+v", hs.ledger.txs)
	}
}

func TestHandle_FlowOutOfStateAndCancel(t *testing.T) {
	hs := newHarness(t)

	if got := onlyText(t, hs.press("cat:mercado")); got != msgNoFlow {
		t.Errorf("category without flow = %q", got)
	}
	if hs.state() != StateIdle {
		t.Errorf("out-of-state press changed state to %s", hs.state())
	}
	if got := onlyText(t, hs.say("12")); got != msgIdleText {
		t.Errorf("idle text = %q", got)
	}
	if got := onlyText(t, hs.command("cancelar")); got != msgNothingToCancel {
		t.Errorf("cancel without flow = %q", got)
	}

	hs.press("kind:gasto")
	hs.press("cat:lazer")
	if got := onlyText(t, hs.command("cancelar")); got != msgCancelled {
		t.Errorf("cancel reply = %q", got)
	}
	if hs.state() != StateIdle {
		t.Errorf("state after cancel = %s", hs.state())
	}
	if got := onlyText(t, hs.press("kind:bitcoin")); got != msgUnknownAction {
		t.Errorf("unknown kind reply = %q", got)
	}
}

func TestHandle_FlowExpires(t *testing.T) {
	hs := newHarness(t)
	hs.press("kind:gasto")
	hs.press("cat:lazer")

	hs.now = hs.now.Add(11 * time.Minute)

	if got := onlyText(t, hs.say("30")); got != msgIdleText {
		t.Errorf("amount after expiry = %q, want idle hint", got)
	}
	if len(hs.ledger.txs) != 0 {
		t.Error("expired session recorded a transaction")
	}
}

func TestHandle_FlowSessionsArePerChat(t *testing.T) {
	hs := newHarness(t)
	hs.press("kind:gasto")
	hs.press("cat:lazer")

	other := hs.h.Handle(context.Background(), Request{ChatID: 300, UserID: 300, Text: "30"})
	if onlyText(t, other) != msgIdleText {
		t.Errorf("other chat reply = %+v", other)
	}
	if hs.state() != StateAwaitingAmount {
		t.Errorf("other chat disturbed this session: %s", hs.state())
	}
}

func TestHandle_StorageFailure(t *testing.T) {
	hs := newHarness(t)
	hs.ledger.err = errors.New("database is locked")

	if got := onlyText(t, hs.command("saldo")); got != msgInternalError {
		t.Errorf("reply on storage failure = %q", got)
	}
}

func TestHandle_UnknownCommand(t *testing.T) {
	hs := newHarness(t)
	if got := onlyText(t, hs.command("add", "gasto", "1", "x")); got != msgUnknownCommand {
		t.Errorf("unknown command reply = %q", got)
	}
}
