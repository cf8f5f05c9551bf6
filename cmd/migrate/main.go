package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"blockminds/internal/db"

	"github.com/joho/godotenv"
)

const (
	cmdUp      = "up"
	cmdDown    = "down"
	cmdVersion = "version"

	usage = "usage: migrate [up|down|version] [steps]"
)

type migrator interface {
	Up(ctx context.Context) error
	Down(ctx context.Context, steps int) error
	Version(ctx context.Context) (int64, error)
	Close() error
}

var (
	loadEnvFunc      = godotenv.Load
	openMigratorFunc = func(dsn string) (migrator, error) { return db.OpenMigrator(dsn) }
	exitFunc         = os.Exit
)

func main() {
	_ = loadEnvFunc()
	if err := run(context.Background(), os.Args[1:], os.Getenv("DATABASE_URL"), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitFunc(1)
	}
}

func run(ctx context.Context, args []string, dsn string, out io.Writer) error {
	if len(args) < 1 {
		return fmt.Errorf(usage)
	}
	if strings.TrimSpace(dsn) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	steps := 1
	switch args[0] {
	case cmdUp, cmdVersion:
	case cmdDown:
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid down steps: %q", args[1])
			}
			steps = n
		}
	default:
		return fmt.Errorf("unknown command %q. %s", args[0], usage)
	}

	m, err := openMigratorFunc(dsn)
	if err != nil {
		return fmt.Errorf("open migrator: %w", err)
	}
	defer m.Close()

	switch args[0] {
	case cmdUp:
		if err := m.Up(ctx); err != nil {
			return fmt.Errorf("apply migrations up: %w", err)
		}
	case cmdDown:
		if err := m.Down(ctx, steps); err != nil {
			return fmt.Errorf("apply migrations down: %w", err)
		}
	}

	version, err := m.Version(ctx)
	if err != nil {
		return fmt.Errorf("read current version: %w", err)
	}
	if version == 0 {
		fmt.Fprintln(out, "no migrations applied")
		return nil
	}
	fmt.Fprintf(out, "current version: %d\n", version)
	return nil
}
