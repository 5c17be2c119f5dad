package main

// Apply or inspect database migrations:
//   go run ./cmd/migrate [up|status]

import (
	"context"
	"log"
	"os"

	"resume-pipeline/internal/shared/config"
	"resume-pipeline/internal/shared/storage/db"
	"resume-pipeline/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	logger, err := telemetry.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	opts := db.OptionsFromEnv(db.DefaultCLIOptions(), logger)
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts, logger)
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	switch command {
	case "up":
		err = db.RunMigrations(ctx, sqlDB)
	case "status":
		err = db.MigrationStatus(ctx, sqlDB)
	default:
		log.Printf("unknown command %q (want up or status)", command)
		os.Exit(2)
	}
	if err != nil {
		log.Printf("migrate %s: %v", command, err)
		os.Exit(1)
	}
}
