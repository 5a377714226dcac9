// Command migrate manages the escrowd database schema via goose.
//
// Usage:
//
//	go run ./cmd/migrate up
//	go run ./cmd/migrate status
//	go run ./cmd/migrate down-to 1
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

func main() {
	dir := flag.String("dir", "migrations", "directory with migration files")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: migrate [-dir migrations] <command> [args]")
		fmt.Fprintln(os.Stderr, "Commands: up, down, status, version, redo, up-to <v>, down-to <v>")
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*dir, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run(dir, command string, args []string) error {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	if err := goose.RunContext(context.Background(), command, db, dir, args...); err != nil {
		return fmt.Errorf("%s: %w", command, err)
	}
	return nil
}
