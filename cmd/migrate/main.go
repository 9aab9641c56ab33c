/*
migrate applies (or rolls back) the schema in migrations/ against the
configured Postgres database.

Usage:

	go run cmd/migrate/main.go [flags]

Flags:

	-dsn string
	    PostgreSQL connection string (required, or via VERIDESK_DATABASE_DSN env)
	-down
	    Roll back one migration step instead of applying all pending ones
*/
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("VERIDESK_DATABASE_DSN"), "Postgres DSN (VERIDESK_DATABASE_DSN env)")
	down := flag.Bool("down", false, "Roll back one migration step instead of applying all pending ones")
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "error: -dsn or VERIDESK_DATABASE_DSN env required")
		os.Exit(1)
	}

	m, err := migrate.New("file://migrations", *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open migrator: %v\n", err)
		os.Exit(1)
	}

	if *down {
		err = m.Steps(-1)
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintf(os.Stderr, "error: migrate: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("migration complete")
}
