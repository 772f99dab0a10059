package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vncsmyrnk/ideavote/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/ideavote/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		names, _ := postgres.MigrationNames()
		log.Fatalf("a migration name is required, e.g. create_ledger.up. available: %v", names)
	}
	migrationName := os.Args[1]

	pg, err := config.LoadPostgres()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := postgres.Open(ctx, pg.DSN())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := postgres.ApplyNamed(ctx, db, migrationName); err != nil {
		log.Fatalf("Failed to execute SQL file: %v", err)
	}

	fmt.Println("Migration file executed successfully.")
}
