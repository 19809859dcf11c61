package main

import (
	"context"
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"finbot/internal/amqp"
	"finbot/internal/bot"
	"finbot/internal/cache"
	"finbot/internal/cli"
	"finbot/internal/config"
	apphttp "finbot/internal/http"
	applog "finbot/internal/log"
	"finbot/internal/ratelimit"
	"finbot/internal/scheduler"
	"finbot/internal/services"
	"finbot/internal/telegram"
)

const (
	maxSessions     = 10000
	janitorInterval = time.Minute
)

// store is the ledger database as seen by the process: the service port
// plus a way to release it.
type store interface {
	services.Store
	Close() error
}

// deps opens the external resources run needs.
type deps struct {
	openStore func(ctx context.Context, cfg *config.Config, logger *applog.Logger) (store, error)
	newBotAPI func(token string, debug bool) (telegram.BotAPI, error)
}

func defaultDeps() deps {
	return deps{
		openStore: func(ctx context.Context, cfg *config.Config, logger *applog.Logger) (store, error) {
			repo, err := cli.OpenStore(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			return repo, nil
		},
		newBotAPI: func(token string, debug bool) (telegram.BotAPI, error) {
			api, err := telegram.NewBotAPI(token, debug)
			if err != nil {
				return nil, err
			}
			return api, nil
		},
	}
}

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg)

	if err := cfg.ValidateBot(); err != nil {
		cli.Fatal(logger, "Configuration validation failed", err)
	}
	logger.Info("Starting finbot", "timezone", cfg.Timezone, "amqp_enabled", cfg.AMQPURL != "")

	ctx, cancel := cli.SignalContext(logger)
	err := run(ctx, cfg, logger, defaultDeps())
	cancel()
	if err != nil {
		cli.Fatal(logger, "finbot stopped with error", err)
	}
	logger.Info("finbot stopped")
}

// run wires the bot and blocks until ctx is cancelled. Every resource it
// opens is closed before it returns.
func run(ctx context.Context, cfg *config.Config, logger *applog.Logger, d deps) error {
	db, err := d.openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			return fmt.Errorf("connect to AMQP broker: %w", err)
		}
		defer client.Close()
		publisher = client
	}
	ledger := services.NewLedgerService(db, publisher, logger)

	sessions := cache.NewLRUCache[int64, bot.Session](maxSessions, cfg.FlowTimeout)
	limiter := ratelimit.NewLimiter(cfg.ChatRateLimit)
	janitor := cache.NewJanitor(logger.WithComponent(applog.ComponentBot), sessions, limiter)

	handler := bot.NewHandler(ledger, sessions, bot.Config{
		DashboardURL:      cfg.DashboardURL,
		SummaryWindowDays: cfg.SummaryWindowDays,
		RecentLimit:       cfg.RecentLimit,
	}, logger)

	api, err := d.newBotAPI(cfg.TelegramToken, cfg.TelegramDebug)
	if err != nil {
		return fmt.Errorf("authenticate with telegram: %w", err)
	}
	transport := telegram.NewTransport(api, handler, cfg.TelegramPollTimeout, logger, telegram.WithLimiter(limiter))

	sched, err := scheduler.New(ledger, transport, scheduler.Config{
		WeeklyDigestSpec:   cfg.WeeklyDigestCron,
		MonthlyBalanceSpec: cfg.MonthlyBalanceCron,
		Location:           cfg.Location(),
		SummaryWindowDays:  cfg.SummaryWindowDays,
	}, logger)
	if err != nil {
		return fmt.Errorf("configure scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return transport.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return janitor.Run(gctx, janitorInterval) })
	if cfg.HealthAddr != "" {
		srv := apphttp.NewServer(cfg.HealthAddr, ledger, logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
