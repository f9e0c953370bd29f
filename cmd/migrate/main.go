// Command migrate manages the mirror bot's database schema from the
// command line. The bot applies pending migrations itself on startup;
// this tool exists for rollbacks and for inspecting schema state.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "modernc.org/sqlite"

	"mirror_bot/migrations"
)

var commands = []struct {
	name string
	help string
	run  func(*sql.DB) error
}{
	{"up", "apply all pending migrations", migrations.Apply},
	{"down", "roll back the most recent migration", migrations.Rollback},
	{"status", "show the applied state of every migration", migrations.Status},
	{"version", "print the current schema version", migrations.Version},
	{"reset", "roll back all migrations", migrations.Reset},
}

func main() {
	dbPath := flag.String("db", defaultDBPath(), "path to the sqlite database")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	name := flag.Arg(0)

	var run func(*sql.DB) error
	for _, c := range commands {
		if c.name == name {
			run = c.run
			break
		}
	}
	if run == nil {
		log.Fatalf("unknown command %q, see migrate -h", name)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open %s: %v", *dbPath, err)
	}
	defer func() { _ = db.Close() }()

	if err := run(db); err != nil {
		log.Fatalf("%s: %v", name, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Manage the mirror bot's database schema.")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage: migrate [-db path] <command>")
	fmt.Fprintln(os.Stderr, "")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.help)
	}
	fmt.Fprintln(os.Stderr, "")
	flag.PrintDefaults()
}

func defaultDBPath() string {
	if p := os.Getenv("DATABASE_PATH"); p != "" {
		return p
	}
	return "./data/bot.db"
}
