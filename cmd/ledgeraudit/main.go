package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vncsmyrnk/ideavote/internal/adapters/repository"
	"github.com/vncsmyrnk/ideavote/internal/config"
	"github.com/vncsmyrnk/ideavote/internal/core/services"
)

func main() {
	pg, err := config.LoadPostgres()
	if err != nil {
		log.Fatal(err)
	}

	var (
		driver      string
		sqlitePath  string
		boltPath    string
		concurrency int
		timeout     time.Duration
	)

	flag.StringVar(&driver, "driver", envOr("STORAGE_DRIVER", repository.DriverSQLite), "Storage driver: postgres, sqlite or bolt")
	flag.StringVar(&sqlitePath, "sqlite-path", envOr("SQLITE_PATH", "ideas.db"), "SQLite database file")
	flag.StringVar(&boltPath, "bolt-path", envOr("BOLT_PATH", "ideas.bolt"), "Bolt database file")
	flag.StringVar(&pg.Host, "db-host", pg.Host, "Database host")
	flag.StringVar(&pg.Port, "db-port", pg.Port, "Database port")
	flag.StringVar(&pg.User, "db-user", pg.User, "Database user")
	flag.StringVar(&pg.Password, "db-pass", pg.Password, "Database password")
	flag.StringVar(&pg.DB, "db-name", pg.DB, "Database name")
	flag.IntVar(&concurrency, "concurrency", 8, "Proposals tallied in parallel")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Upper bound for the whole audit")
	flag.Parse()

	if driver == repository.DriverMemory {
		log.Fatal("the memory driver has nothing to audit")
	}

	// Use a timeout for the job execution to prevent it from hanging indefinitely
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	repo, err := repository.Open(ctx, repository.Options{
		Driver:      driver,
		PostgresDSN: pg.DSN(),
		SQLitePath:  sqlitePath,
		BoltPath:    boltPath,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer repo.Close()

	auditService := services.NewAuditService(repo, concurrency, nil)

	log.Println("Starting ledger audit...")

	report, err := auditService.Audit(ctx)
	if err != nil {
		log.Fatalf("Error auditing ledger: %v", err)
	}

	for _, m := range report.Mismatches {
		fmt.Printf("mismatch proposal=%s vote_count=%d ballots=%d\n", m.ProposalID, m.VoteCount, m.BallotCount)
	}
	log.Printf("Audit completed: %d proposals checked, %d mismatches.", report.Checked, len(report.Mismatches))

	if len(report.Mismatches) > 0 {
		repo.Close()
		os.Exit(1)
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
