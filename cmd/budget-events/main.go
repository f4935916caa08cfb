// Command budget-events consumes record events published by the budget
// server and writes them to the structured log.
package main

import (
	"context"
	"errors"
	"os"

	"budget/internal/amqp"
	"budget/internal/cli"
	"budget/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel).WithComponent(log.ComponentEvents)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required", log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	logger.Info("Starting budget-events", "queue", cfg.AMQPQueue)
	err = client.ConsumeWithRetry(ctx, func(ctx context.Context, e *amqp.RecordEvent) error {
		logger.InfoContext(ctx, "Record event",
			log.FieldEventType, e.Type,
			log.FieldTenantID, e.TenantID,
			log.FieldRecordID, e.RecordID,
			log.FieldCategoryID, e.CategoryID,
			"amount_cents", e.AmountCents,
			"occurred_at", e.OccurredAt)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Consumer stopped")
}
