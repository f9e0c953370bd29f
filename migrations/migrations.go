// Package migrations manages the bot's sqlite schema. The SQL files
// are embedded so a binary can bring a fresh database up on its own.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var files embed.FS

// Apply brings the schema of db up to the latest version.
func Apply(db *sql.DB) error {
	return run(db, goose.Up)
}

// Rollback undoes the most recent migration.
func Rollback(db *sql.DB) error {
	return run(db, goose.Down)
}

// Status prints the applied state of every known migration.
func Status(db *sql.DB) error {
	return run(db, goose.Status)
}

// Version prints the current schema version.
func Version(db *sql.DB) error {
	return run(db, goose.Version)
}

// Reset rolls back all migrations.
func Reset(db *sql.DB) error {
	return run(db, goose.Reset)
}

func run(db *sql.DB, op func(*sql.DB, string, ...goose.OptionsFunc) error) error {
	goose.SetBaseFS(files)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return op(db, ".")
}
