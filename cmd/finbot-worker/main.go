package main

import (
	"context"
	"errors"
	_ "time/tzdata"

	"finbot/internal/amqp"
	"finbot/internal/cli"
	"finbot/internal/config"
	applog "finbot/internal/log"
	"finbot/internal/sheets"
	gsheet "finbot/internal/sheets/google"
	"finbot/internal/sheets/memory"
	"finbot/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg)

	if err := cfg.ValidateWorker(); err != nil {
		cli.Fatal(logger, "Configuration validation failed", err)
	}
	logger.Info("Starting finbot-worker", "queue", cfg.AMQPQueue)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	var mirror sheets.Mirror
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, gsheet.Credentials{
			JSON: cfg.GoogleServiceAccountJSON,
			File: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
		}
		mirror = client
	} else {
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, mirroring into memory")
		mirror = memory.New()
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to connect to AMQP broker", err)
	}
	defer client.Close()

	w := worker.NewMirrorWorker(mirror, logger)
	if err := client.ConsumeTransactionEvents(ctx, w.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Event consumption failed", applog.FieldError, err)
		return
	}
	logger.Info("finbot-worker stopped")
}
