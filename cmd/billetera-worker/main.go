package main

import (
	"context"
	"errors"
	"time"

	"billetera/internal/amqp"
	"billetera/internal/backend"
	"billetera/internal/cli"
	"billetera/internal/log"
	"billetera/internal/sheets"
	gsheet "billetera/internal/sheets/google"
	"billetera/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting billetera-worker", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	svc, err := backend.Build(startCtx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err)
	}
	defer svc.Close()

	var mirror sheets.TransactionMirror
	if cfg.MirrorEnabled() {
		client, err := gsheet.New(startCtx, gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			svc.Close()
			cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
		}
		if err := client.EnsureHeader(startCtx); err != nil {
			logger.Warn("Failed to write sheet header", log.FieldError, err)
		}
		mirror = client
		logger.Info("Google Sheets mirror enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets mirror disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	var source worker.EventSource
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			svc.Close()
			cli.Fatal(logger, "Failed to initialize AMQP client", err)
		}
		defer client.Close()
		source = client
	} else {
		logger.Info("AMQP_URL not set, running periodic reconciliation only")
	}

	w := worker.NewReconcileWorker(svc.Ledger, mirror, cfg.ReconcileInterval, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)
	if err := w.Run(ctx, source); err != nil && !errors.Is(err, context.Canceled) {
		svc.Close()
		cli.Fatal(logger, "Worker stopped with error", err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
