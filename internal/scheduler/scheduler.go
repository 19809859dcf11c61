// Package scheduler runs the periodic broadcasts: a weekly summary digest
// and a monthly balance reminder sent to every registered user.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"finbot/internal/bot"
	"finbot/internal/core"
	applog "finbot/internal/log"
)

const (
	JobWeeklyDigest   = "weekly_digest"
	JobMonthlyBalance = "monthly_balance"
)

// Reporter reads what the broadcasts need.
type Reporter interface {
	ListUsers(ctx context.Context) ([]int64, error)
	Summary(ctx context.Context, ownerID int64, windowDays int) ([]core.CategoryTotal, error)
	Balance(ctx context.Context, ownerID int64) (core.Money, error)
}

// Notifier delivers a message to a chat.
type Notifier interface {
	Send(ctx context.Context, chatID int64, reply bot.Reply) error
}

type Config struct {
	WeeklyDigestSpec   string
	MonthlyBalanceSpec string
	Location           *time.Location
	SummaryWindowDays  int
}

// Result counts the outcome of one broadcast.
type Result struct {
	Recipients int
	Sent       int
	Skipped    int
	Failed     int
}

type Scheduler struct {
	cron     *cron.Cron
	reporter Reporter
	notifier Notifier
	cfg      Config
	logger   *applog.Logger

	mu  sync.Mutex
	ctx context.Context
}

// New registers both jobs. It fails when a cron spec does not parse.
func New(reporter Reporter, notifier Notifier, cfg Config, logger *applog.Logger) (*Scheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SummaryWindowDays <= 0 {
		cfg.SummaryWindowDays = 7
	}
	logger = logger.WithComponent(applog.ComponentScheduler)

	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		reporter: reporter,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		ctx:      context.Background(),
	}

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) (Result, error)
	}{
		{JobWeeklyDigest, cfg.WeeklyDigestSpec, s.SendWeeklyDigest},
		{JobMonthlyBalance, cfg.MonthlyBalanceSpec, s.SendMonthlyBalance},
	}
	for _, j := range jobs {
		j := j
		if _, err := s.cron.AddFunc(j.spec, func() { s.runJob(j.name, j.run) }); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", j.name, j.spec, err)
		}
	}
	return s, nil
}

// Run starts the cron loop and blocks until ctx is cancelled, then waits
// for running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Info("Job scheduled", "next_run", e.Next.Format(time.RFC3339))
	}

	<-ctx.Done()
	s.logger.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
	return nil
}

func (s *Scheduler) runJob(name string, run func(context.Context) (Result, error)) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	start := time.Now()
	res, err := run(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Broadcast failed", applog.FieldJob, name, applog.FieldError, err)
		return
	}
	s.logger.InfoContext(ctx, "Broadcast finished",
		applog.FieldJob, name,
		"recipients", res.Recipients,
		"sent", res.Sent,
		"skipped", res.Skipped,
		"failed", res.Failed,
		applog.FieldDuration, time.Since(start).Milliseconds())
}

// SendWeeklyDigest sends each user with recent activity their summary.
// Users without transactions in the window are skipped.
func (s *Scheduler) SendWeeklyDigest(ctx context.Context) (Result, error) {
	return s.broadcast(ctx, JobWeeklyDigest, func(owner int64) (bot.Reply, bool, error) {
		totals, err := s.reporter.Summary(ctx, owner, s.cfg.SummaryWindowDays)
		if err != nil || len(totals) == 0 {
			return bot.Reply{}, false, err
		}
		return bot.Reply{Text: bot.FormatSummary("Resumo semanal", totals), Markdown: true}, true, nil
	})
}

// SendMonthlyBalance sends every user their all-time balance.
func (s *Scheduler) SendMonthlyBalance(ctx context.Context) (Result, error) {
	return s.broadcast(ctx, JobMonthlyBalance, func(owner int64) (bot.Reply, bool, error) {
		bal, err := s.reporter.Balance(ctx, owner)
		if err != nil {
			return bot.Reply{}, false, err
		}
		return bot.Reply{Text: bot.FormatBalance("Seu saldo atual neste início de mês é", bal)}, true, nil
	})
}

// broadcast builds and sends one message per registered user. A failure
// for one user is logged and counted; the loop always continues.
func (s *Scheduler) broadcast(ctx context.Context, job string, build func(owner int64) (bot.Reply, bool, error)) (Result, error) {
	users, err := s.reporter.ListUsers(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list users: %w", err)
	}

	res := Result{Recipients: len(users)}
	for _, owner := range users {
		if ctx.Err() != nil {
			res.Skipped += res.Recipients - res.Sent - res.Skipped - res.Failed
			break
		}

		reply, ok, err := build(owner)
		if err != nil {
			res.Failed++
			s.logger.WarnContext(ctx, "Broadcast report failed",
				applog.FieldJob, job, applog.FieldOwnerID, owner, applog.FieldError, err)
			continue
		}
		if !ok {
			res.Skipped++
			continue
		}

		if err := s.notifier.Send(ctx, owner, reply); err != nil {
			res.Failed++
			s.logger.WarnContext(ctx, "Broadcast delivery failed",
				applog.FieldJob, job, applog.FieldOwnerID, owner, applog.FieldError, err)
			continue
		}
		res.Sent++
	}
	return res, nil
}

// cronLogger routes cron's own logging into the application logger.
type cronLogger struct {
	logger *applog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]any{applog.FieldError, err}, keysAndValues...)...)
}
