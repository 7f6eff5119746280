package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/mojiQAQ/petsphoto/internal/db"
)

func main() {
	_ = godotenv.Load()

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s up|down|version\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	cmd := strings.ToLower(strings.TrimSpace(flag.Arg(0)))
	switch cmd {
	case "up", "down":
		if err := db.Migrate(dbURL, db.Direction(cmd)); err != nil {
			exitWithError(err)
		}
	case "version":
	default:
		flag.Usage()
		os.Exit(2)
	}

	version, dirty, err := db.MigrationVersion(dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("read migration version: %w", err))
	}
	fmt.Printf("schema version=%d dirty=%t\n", version, dirty)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
