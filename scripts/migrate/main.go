package main

import (
	"log"
	"os"

	"github.com/mama165/sdk-go/logs"

	"github.com/mahaj/community-chat/pkg/config"
	"github.com/mahaj/community-chat/pkg/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logs.GetLoggerFromString(cfg.LogLevel)

	if err := db.Migrate(cfg.ScyllaHostList(), cfg.ScyllaKeyspace, logger); err != nil {
		logger.Error("Migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Schema is up to date", "keyspace", cfg.ScyllaKeyspace)
}
