package main

import (
	"flag"
	"log"
	"os"

	"github.com/mama165/sdk-go/logs"

	"github.com/mahaj/community-chat/pkg/config"
	"github.com/mahaj/community-chat/pkg/db"
)

func main() {
	table := flag.String("table", "messages", "table to drop")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logs.GetLoggerFromString(cfg.LogLevel)

	session, err := db.NewSession(cfg.ScyllaHostList(), cfg.ScyllaKeyspace, logger)
	if err != nil {
		logger.Error("Failed to connect to ScyllaDB", "error", err)
		os.Exit(1)
	}
	defer session.Close()

	logger.Info("Dropping table", "table", *table)
	if err := session.Query("DROP TABLE IF EXISTS " + *table).Exec(); err != nil {
		logger.Error("Failed to drop table", "table", *table, "error", err)
		os.Exit(1)
	}
	logger.Info("Table dropped successfully", "table", *table)
}
