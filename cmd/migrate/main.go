package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/ignite/domainwatch/internal/registration"
)

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "sqlite://domains.db"
	}

	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		}
	}

	ctx := context.Background()
	db, dialect, err := registration.OpenSQLDB(ctx, dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()
	log.Printf("Connected to %s database", dialect)

	if listOnly {
		files, err := registration.MigrationFiles(dialect)
		if err != nil {
			log.Fatal(err)
		}
		for _, f := range files {
			fmt.Println(" ", f)
		}
		fmt.Printf("Total: %d migrations\n", len(files))
		return
	}

	var okCount int
	err = registration.RunMigrations(ctx, db, dialect, func(name string) {
		fmt.Printf("  %s ... OK\n", name)
		okCount++
	})
	if err != nil {
		log.Fatalf("Done: %d OK, 1 error: %v", okCount, err)
	}
	log.Printf("Done: %d OK, 0 errors", okCount)
	log.Println("Migrations complete")
}
