package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"
	"go.uber.org/multierr"

	"github.com/mahaj/community-chat/pkg/activity"
	"github.com/mahaj/community-chat/pkg/config"
	"github.com/mahaj/community-chat/pkg/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logs.GetLoggerFromString(cfg.LogLevel)

	if len(cfg.KafkaBrokerList()) == 0 {
		logger.Error("KAFKA_BROKERS is required for the activity projector")
		os.Exit(1)
	}

	session, err := db.NewSession(cfg.ScyllaHostList(), cfg.ScyllaKeyspace, logger)
	if err != nil {
		logger.Error("Failed to connect to ScyllaDB", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	projector := activity.NewProjector(newReader(cfg), activity.NewScyllaStore(session), logger)

	logger.Info("Starting activity projector", "topic", cfg.KafkaTopic, "group_id", cfg.KafkaGroupID)
	err = projector.Run(ctx)
	session.Close()
	if err = multierr.Append(err, projector.Close()); err != nil {
		logger.Error("Activity projector stopped with errors", "error", err)
		os.Exit(1)
	}
	logger.Info("Activity projector stopped")
}
