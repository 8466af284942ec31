// migrate управляет схемой базы учёта: up, down, status, list.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/muzbazar/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = "LEDGER_POSTGRES_DSN"
)

// schemaMigrator — операции *postgres.Store, которые нужны утилите.
type schemaMigrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (postgres.SchemaStatus, error)
	Migrations(ctx context.Context) ([]postgres.MigrationInfo, error)
}

type config struct {
	command string
	steps   int
	dsn     string
	timeout time.Duration
}

var openMigrator = func(ctx context.Context, dsn string) (schemaMigrator, func() error, error) {
	store, err := postgres.Open(ctx, dsn, postgres.WithMaxConns(2))
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres store: %w", err)
	}
	return store, store.Close, nil
}

func main() {
	cfg, err := readConfig(os.Args[1:])
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	migrator, closeFn, err := openMigrator(ctx, cfg.dsn)
	if err != nil {
		fail("%v", err)
	}
	defer func() { _ = closeFn() }()

	if err := run(ctx, migrator, cfg, os.Stdout); err != nil {
		fail("%v", err)
	}
}

func readConfig(args []string) (config, error) {
	cfg := config{}
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.StringVar(&cfg.command, "direction", "up", "command: up|down|status|list")
	fs.IntVar(&cfg.steps, "steps", 0, "migrations to apply (0 = all) or roll back (0 = one)")
	fs.StringVar(&cfg.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	fs.DurationVar(&cfg.timeout, "timeout", defaultTimeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	cfg.command = strings.ToLower(strings.TrimSpace(cfg.command))
	cfg.dsn = strings.TrimSpace(cfg.dsn)
	if cfg.dsn == "" {
		cfg.dsn = strings.TrimSpace(os.Getenv(envPostgresDSN))
	}

	switch {
	case cfg.dsn == "":
		return config{}, fmt.Errorf("%s (or -dsn) is required", envPostgresDSN)
	case cfg.steps < 0:
		return config{}, errors.New("steps must be >= 0")
	case cfg.timeout <= 0:
		return config{}, errors.New("timeout must be > 0")
	}
	switch cfg.command {
	case "up", "down", "status", "list":
	default:
		return config{}, fmt.Errorf("unsupported direction: %s (use up|down|status|list)", cfg.command)
	}
	return cfg, nil
}

func run(ctx context.Context, m schemaMigrator, cfg config, out io.Writer) error {
	switch cfg.command {
	case "up":
		if err := m.MigrateUp(ctx, cfg.steps); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if err := m.MigrateDown(ctx, cfg.steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	case "list":
		return printList(ctx, m, out)
	}

	status, err := m.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	_, _ = fmt.Fprintf(out, "%s: version=%d applied=%d pending=%d\n", cfg.command, status.Version, status.Applied, status.Pending)
	return nil
}

func printList(ctx context.Context, m schemaMigrator, out io.Writer) error {
	infos, err := m.Migrations(ctx)
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}

	drifted := 0
	for _, info := range infos {
		mark, when := " ", ""
		if info.Applied {
			mark, when = "x", info.AppliedAt.UTC().Format(time.RFC3339)
		}
		if info.Drifted {
			mark = "!"
			drifted++
		}
		_, _ = fmt.Fprintf(out, "[%s] %03d %-28s %s %s\n", mark, info.Version, info.Name, info.Checksum, when)
	}
	if drifted > 0 {
		return fmt.Errorf("%w: %d file(s) changed after apply", postgres.ErrMigrationDrift, drifted)
	}
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
