package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/liamcoop/chronopulse/internal/logger"
)

// migrator is the subset of *migrate.Migrate the commands use
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
}

func main() {
	var databaseURL string
	var migrationsPath string
	var command string

	flag.StringVar(&databaseURL, "database", "", "Database URL (defaults to DATABASE_URL)")
	flag.StringVar(&migrationsPath, "path", "migrations", "Path to migrations directory")
	flag.StringVar(&command, "command", "up", "Migration command: up, down, steps, version, force")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		logger.Fatal("database URL is required, use -database or DATABASE_URL")
	}

	log := logger.New("migrate")
	log.Info("connecting to database", "path", migrationsPath)

	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		logger.Fatal("failed to create migration instance", "error", err)
	}
	defer m.Close()

	msg, err := run(m, command, flag.Args())
	if err != nil {
		logger.Fatal("migration failed", "command", command, "error", err)
	}
	log.Info(msg, "command", command)
}

// run executes command and returns a summary for the log
func run(m migrator, command string, args []string) (string, error) {
	switch command {
	case "up":
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			return "no migrations to run (database is up to date)", nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to run migrations: %w", err)
		}
		return "migrations completed", nil

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return "", fmt.Errorf("failed to roll back migrations: %w", err)
		}
		return "rollback completed", nil

	case "steps":
		n, err := intArg(args, "steps")
		if err != nil {
			return "", err
		}
		if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return "", fmt.Errorf("failed to apply %d steps: %w", n, err)
		}
		return fmt.Sprintf("applied %d steps", n), nil

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return "no migration applied yet", nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to get version: %w", err)
		}
		return fmt.Sprintf("current version: %d (dirty: %v)", version, dirty), nil

	case "force":
		version, err := intArg(args, "force")
		if err != nil {
			return "", err
		}
		if err := m.Force(version); err != nil {
			return "", fmt.Errorf("failed to force version: %w", err)
		}
		return fmt.Sprintf("forced version to %d", version), nil

	default:
		return "", fmt.Errorf("unknown command: %s (use: up, down, steps, version, force)", command)
	}
}

func intArg(args []string, command string) (int, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("%s requires a number: -command %s <n>", command, command)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", args[0], err)
	}
	return n, nil
}
