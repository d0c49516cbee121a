// Command audit-ledger runs the pool invariant audit once against the configured
// PostgreSQL store and exits non-zero when any pool fails.
//
//	audit-ledger                 run the audit
//	audit-ledger sample-config   write config.sample.json
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"asset-pool-ledger/config"
	"asset-pool-ledger/internal/audit"
	"asset-pool-ledger/internal/database"
	"asset-pool-ledger/internal/logging"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "sample-config" {
		if err := config.GenerateSampleConfig("config.sample.json"); err != nil {
			fmt.Printf("Failed to write sample config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Wrote config.sample.json")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if !cfg.DatabaseConfig.Enabled {
		fmt.Println("DB_ENABLED must be true: the in-memory store has nothing to audit")
		os.Exit(1)
	}

	logger, closer := logging.New(cfg.LoggingConfig)
	defer closer.Close()

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
		MaxConns: int32(cfg.DatabaseConfig.MaxConns),
	}, logger)
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	store := database.NewStore(db, database.DefaultStoreConfig(), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := audit.NewScheduler(store, nil, logger).RunOnce(ctx)
	if err != nil {
		fmt.Printf("Audit failed to run: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println(" LEDGER INVARIANT AUDIT")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Pools checked: %d\n", report.Pools)
	fmt.Printf("Failed:        %d\n", len(report.Failed))
	fmt.Printf("With warnings: %d\n", len(report.Warned))
	fmt.Printf("Duration:      %s\n", report.Duration.Round(time.Millisecond))

	for _, r := range report.Failed {
		fmt.Printf("\n[FAIL] %s\n", r.AssetID)
		for _, e := range r.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	for _, r := range report.Warned {
		fmt.Printf("\n[WARN] %s\n", r.AssetID)
		for _, w := range r.Warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	if len(report.Failed) > 0 {
		closer.Close()
		os.Exit(2)
	}
}
