package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"finbot/internal/cache"
	"finbot/internal/core"
	applog "finbot/internal/log"
)

// Ledger is what the handlers need from the ledger service.
type Ledger interface {
	RegisterUser(ctx context.Context, ownerID int64) error
	AddTransaction(ctx context.Context, nt core.NewTransaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id, ownerID int64) (bool, error)
	Summary(ctx context.Context, ownerID int64, windowDays int) ([]core.CategoryTotal, error)
	Balance(ctx context.Context, ownerID int64) (core.Money, error)
	MonthlyTotals(ctx context.Context, ownerID int64) (core.MonthTotals, error)
	ListRecent(ctx context.Context, ownerID int64, limit int) ([]core.Transaction, error)
	Export(ctx context.Context, ownerID int64) ([]byte, bool, error)
}

// Config holds handler settings.
type Config struct {
	DashboardURL      string
	SummaryWindowDays int
	RecentLimit       int
}

// Handler dispatches requests. Flow sessions are keyed by chat id.
type Handler struct {
	ledger   Ledger
	sessions cache.Cache[int64, Session]
	cfg      Config
	logger   *applog.Logger
}

func NewHandler(ledger Ledger, sessions cache.Cache[int64, Session], cfg Config, logger *applog.Logger) *Handler {
	if cfg.SummaryWindowDays <= 0 {
		cfg.SummaryWindowDays = 7
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 5
	}
	return &Handler{
		ledger:   ledger,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger.WithComponent(applog.ComponentBot),
	}
}

// Handle processes one request and returns the replies to send, in order.
func (h *Handler) Handle(ctx context.Context, req Request) []Reply {
	if err := h.ledger.RegisterUser(ctx, req.UserID); err != nil {
		return h.fail(ctx, req, "register user", err)
	}

	switch {
	case req.Callback != "":
		return h.handleCallback(ctx, req)
	case req.Command != "":
		return h.handleCommand(ctx, req)
	default:
		return h.handleText(ctx, req)
	}
}

func (h *Handler) handleCommand(ctx context.Context, req Request) []Reply {
	h.logger.DebugContext(ctx, "Command received",
		append(applog.NewFields().WithChat(req.ChatID, req.UserID).ToSlice(), applog.FieldCommand, req.Command)...)

	switch req.Command {
	case "iniciar", "start", "ajuda", "help":
		return []Reply{text(usageText)}
	case "registrar":
		return h.register(ctx, req)
	case "resumo":
		return h.summary(ctx, req)
	case "saldo":
		return h.balance(ctx, req)
	case "planilha":
		return h.export(ctx, req)
	case "ultimas":
		return h.recent(ctx, req)
	case "painel":
		return h.dashboard(ctx, req)
	case "novo":
		h.sessions.Delete(req.ChatID)
		return []Reply{{Text: msgChooseKind, Buttons: kindButtons()}}
	case "cancelar":
		if s, ok := h.sessions.Get(req.ChatID); !ok || s.State == StateIdle {
			return []Reply{text(msgNothingToCancel)}
		}
		h.sessions.Delete(req.ChatID)
		return []Reply{text(msgCancelled)}
	default:
		return []Reply{text(msgUnknownCommand)}
	}
}

func (h *Handler) register(ctx context.Context, req Request) []Reply {
	if len(req.Args) != 3 {
		return []Reply{text(msgRegisterUsage)}
	}

	kind, err := core.ParseKind(req.Args[0])
	if err != nil {
		return []Reply{text(msgInvalidKind)}
	}
	amount, err := core.ParseAmount(req.Args[1])
	if err != nil {
		return []Reply{text(msgInvalidAmount)}
	}
	category, err := core.NormalizeCategory(req.Args[2])
	if err != nil {
		return []Reply{text(msgInvalidCategory)}
	}

	replies, _ := h.record(ctx, req, core.NewTransaction{
		OwnerID:  req.UserID,
		Kind:     kind,
		Amount:   amount,
		Category: category,
	})
	return replies
}

// record stores nt and appends the budget warning when this month's
// expenses reached the alert threshold. ok reports whether nt was stored.
func (h *Handler) record(ctx context.Context, req Request, nt core.NewTransaction) (replies []Reply, ok bool) {
	tx, err := h.ledger.AddTransaction(ctx, nt)
	if err != nil {
		return h.fail(ctx, req, "add transaction", err), false
	}
	replies = []Reply{text(formatRecorded(tx))}

	totals, err := h.ledger.MonthlyTotals(ctx, req.UserID)
	if err != nil {
		h.logger.WarnContext(ctx, "Budget check failed",
			applog.NewFields().WithChat(req.ChatID, req.UserID).WithError(err).ToSlice()...)
		return replies, true
	}
	if percent, alert := totals.BudgetAlert(); alert {
		replies = append(replies, text(formatBudgetWarning(percent)))
	}
	return replies, true
}

func (h *Handler) summary(ctx context.Context, req Request) []Reply {
	totals, err := h.ledger.Summary(ctx, req.UserID, h.cfg.SummaryWindowDays)
	if err != nil {
		return h.fail(ctx, req, "summary", err)
	}
	if len(totals) == 0 {
		return []Reply{text(msgNoTransactions)}
	}
	return []Reply{markdown(FormatSummary(SummaryTitle(h.cfg.SummaryWindowDays), totals))}
}

func (h *Handler) balance(ctx context.Context, req Request) []Reply {
	bal, err := h.ledger.Balance(ctx, req.UserID)
	if err != nil {
		return h.fail(ctx, req, "balance", err)
	}
	return []Reply{text(FormatBalance("Seu saldo atual é", bal))}
}

func (h *Handler) export(ctx context.Context, req Request) []Reply {
	data, ok, err := h.ledger.Export(ctx, req.UserID)
	if err != nil {
		return h.fail(ctx, req, "export", err)
	}
	if !ok {
		return []Reply{text(msgNothingToExport)}
	}
	return []Reply{{Document: &Document{
		Name:    exportFileName,
		Data:    data,
		Caption: "📄 Suas transações",
	}}}
}

func (h *Handler) recent(ctx context.Context, req Request) []Reply {
	txs, err := h.ledger.ListRecent(ctx, req.UserID, h.cfg.RecentLimit)
	if err != nil {
		return h.fail(ctx, req, "list recent", err)
	}
	if len(txs) == 0 {
		return []Reply{text(msgNoTransactions)}
	}

	var b strings.Builder
	b.WriteString("🧾 *Últimas transações:*\n")
	buttons := make([][]Button, 0, len(txs))
	for _, tx := range txs {
		b.WriteString(formatRecentLine(tx))
		b.WriteByte('\n')
		id := strconv.FormatInt(tx.ID, 10)
		buttons = append(buttons, []Button{{Text: "🗑 Apagar #" + id, Data: cbDelete + id}})
	}
	return []Reply{{Text: b.String(), Markdown: true, Buttons: buttons}}
}

func (h *Handler) dashboard(ctx context.Context, req Request) []Reply {
	link, err := dashboardLink(h.cfg.DashboardURL, req.UserID)
	if err != nil {
		return h.fail(ctx, req, "dashboard link", err)
	}
	return []Reply{text("📊 Aqui está seu painel de finanças:\n" + link)}
}

func (h *Handler) handleCallback(ctx context.Context, req Request) []Reply {
	data := req.Callback
	switch {
	case strings.HasPrefix(data, cbDelete):
		return h.deleteTransaction(ctx, req, strings.TrimPrefix(data, cbDelete))
	case strings.HasPrefix(data, cbKind):
		kind, err := core.ParseKind(strings.TrimPrefix(data, cbKind))
		if err != nil {
			return []Reply{text(msgUnknownAction)}
		}
		s, err := StartFlow(kind)
		if err != nil {
			return []Reply{text(msgUnknownAction)}
		}
		h.sessions.Set(req.ChatID, s)
		return []Reply{{Text: msgChooseCategory, Buttons: categoryButtons(kind)}}
	case data == cbCustomCategory:
		return h.advance(req, func(s Session) (Session, error) { return s.ChooseCustomCategory() }, msgAskCategoryName)
	case strings.HasPrefix(data, cbCategory):
		category := strings.TrimPrefix(data, cbCategory)
		return h.advance(req, func(s Session) (Session, error) { return s.ChooseCategory(category) }, msgAskAmount)
	default:
		return []Reply{text(msgUnknownAction)}
	}
}

// advance applies a category transition and stores the resulting session.
// Out-of-state presses reply with a hint and leave the session alone.
func (h *Handler) advance(req Request, step func(Session) (Session, error), prompt string) []Reply {
	s, _ := h.sessions.Get(req.ChatID)
	next, err := step(s)
	switch {
	case errors.Is(err, ErrUnexpectedInput):
		return []Reply{text(msgNoFlow)}
	case err != nil:
		return []Reply{text(msgInvalidCategory)}
	}
	h.sessions.Set(req.ChatID, next)
	return []Reply{text(prompt)}
}

func (h *Handler) deleteTransaction(ctx context.Context, req Request, rawID string) []Reply {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return []Reply{text(msgNotFound)}
	}
	ok, err := h.ledger.DeleteTransaction(ctx, id, req.UserID)
	if err != nil {
		return h.fail(ctx, req, "delete transaction", err)
	}
	if !ok {
		return []Reply{text(msgNotFound)}
	}
	return []Reply{text("🗑 Transação #" + rawID + " apagada.")}
}

// handleText feeds free text into the chat's flow session.
func (h *Handler) handleText(ctx context.Context, req Request) []Reply {
	s, _ := h.sessions.Get(req.ChatID)

	switch s.State {
	case StateAwaitingCustomCategoryName:
		next, err := s.NameCategory(req.Text)
		if err != nil {
			return []Reply{text(msgInvalidCategory)}
		}
		h.sessions.Set(req.ChatID, next)
		return []Reply{text(msgAskAmount)}

	case StateAwaitingAmount:
		next, nt, err := s.EnterAmount(req.UserID, req.Text)
		if err != nil {
			return []Reply{text(msgFlowBadAmount)}
		}
		replies, ok := h.record(ctx, req, nt)
		if ok && next.State == StateIdle {
			h.sessions.Delete(req.ChatID)
		}
		return replies

	case StateAwaitingCategory:
		return []Reply{text(msgUseButtons)}

	default:
		return []Reply{text(msgIdleText)}
	}
}

// fail logs a storage failure and returns the generic apology.
func (h *Handler) fail(ctx context.Context, req Request, op string, err error) []Reply {
	h.logger.ErrorContext(ctx, "Request failed",
		applog.NewFields().
			WithChat(req.ChatID, req.UserID).
			WithOperation(op).
			WithError(err).
			ToSlice()...)
	return []Reply{text(msgInternalError)}
}
