// Package main is the entrypoint for packetd, the packet routing server.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/packet-router/internal/config"
	"github.com/morezero/packet-router/internal/server"
	"github.com/morezero/packet-router/pkg/db"
)

const usage = `Usage: packetd [command]
       packetd serve              Start the packet server (NATS sessions, HTTP health).
       packetd migrate up         Run session journal migrations.
       packetd migrate status     Show migration status.
       packetd migrate down       No-op; migrations are forward-only.
       packetd clear              Truncate the session journal; schema is preserved.
       packetd ensure-db [name]   Create the database if missing (default: name from DATABASE_URL).

Commands:
  serve           (default) Start the packet server.
  migrate up      Run database migrations only.
  migrate status  Show current migration status.
  migrate down    Forward-only; prints a notice.
  clear           Truncate journal data; schema preserved.
  ensure-db       Create the database on the DATABASE_URL host.

Environment: COMMS_URL, PACKET_SUBJECT_PREFIX, DATABASE_URL (journal; required for DB commands),
MIGRATION_PATH, HTTP_PORT, LOG_LEVEL. See README.
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("packetd: %v", err)
	}
}

func run(args []string, out io.Writer) error {
	cmd := ""
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			return fmt.Errorf("migrate: require subcommand (up, status, down)")
		}
		switch args[1] {
		case "up":
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				migrations, err := db.LoadMigrations(cfg.MigrationPath)
				if err != nil {
					return fmt.Errorf("load migrations: %w", err)
				}
				return db.RunMigrations(ctx, pool, migrations)
			})
		case "status":
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				state, err := db.MigrationStatus(ctx, pool, cfg.MigrationPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Migration status: %s\n", state)
				return nil
			})
		case "down":
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				return db.MigrationDown(ctx, pool, cfg.MigrationPath)
			})
		default:
			return fmt.Errorf("migrate: unknown subcommand %q (use up, status, down)", args[1])
		}
	case "clear":
		return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
			return db.ClearSessions(ctx, pool)
		})
	case "ensure-db":
		name := ""
		if len(args) > 1 {
			name = args[1]
		}
		return runEnsureDB(name, out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	case "serve", "":
		return server.Run()
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

// withPool loads DB config, opens a pool and runs fn with it.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	server.SetupLogging(cfg.LogLevel)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func runEnsureDB(name string, out io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), cfg.DatabaseURL, name); err != nil {
		return err
	}
	fmt.Fprintln(out, "Database is ready.")
	return nil
}
