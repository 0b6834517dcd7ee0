// Command neuroboost runs the progress engine API and its operator tools.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/neuroboost/progress-engine/config"
	"github.com/neuroboost/progress-engine/internal/application/command"
	"github.com/neuroboost/progress-engine/internal/application/query"
	"github.com/neuroboost/progress-engine/internal/infrastructure/persistence/postgres"
	httpapi "github.com/neuroboost/progress-engine/internal/interface/http"
	"github.com/neuroboost/progress-engine/pkg/logger"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "neuroboost",
		Short:         "XP, levels, streaks and focus sessions for NeuroBoost users",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newProfileCmd())
	root.AddCommand(newAwardCmd())
	root.AddCommand(newFocusCmd())
	return root
}

// withApp loads configuration, wires the app and runs fn against it.
func withApp(ctx context.Context, fn func(a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Warn("shutdown incomplete", logger.Err(err))
		}
	}()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVE
// ══════════════════════════════════════════════════════════════════════════════

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withApp(ctx, func(a *app) error {
				return serve(ctx, a)
			})
		},
	}
}

func serve(ctx context.Context, a *app) error {
	httpCfg := httpapi.DefaultConfig()
	httpCfg.Host = a.cfg.HTTP.Host
	httpCfg.Port = a.cfg.HTTP.Port
	httpCfg.ReadTimeout = a.cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = a.cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = a.cfg.HTTP.IdleTimeout
	httpCfg.Version = a.cfg.App.Version

	server := httpapi.NewServer(httpCfg, a.httpDependencies())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATE
// ══════════════════════════════════════════════════════════════════════════════

func newMigrateCmd() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}

	run := func(fn func(ctx context.Context, m *postgres.Migrator, out io.Writer) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate: storage driver is %q, migrations only apply to postgres (sqlite migrates on open)", cfg.Storage.Driver)
			}
			ctx := cmd.Context()
			conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, postgres.DefaultPoolOptions())
			if err != nil {
				return err
			}
			defer conn.Close()
			return fn(ctx, postgres.NewMigrator(conn), cmd.OutOrStdout())
		}
	}

	migrate.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: run(func(ctx context.Context, m *postgres.Migrator, out io.Writer) error {
			n, err := m.Migrate(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "applied %d migration(s)\n", n)
			return nil
		}),
	})
	migrate.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE: run(func(ctx context.Context, m *postgres.Migrator, out io.Writer) error {
			n, err := m.Rollback(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "rolled back %d migration(s)\n", n)
			return nil
		}),
	})
	migrate.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: run(func(ctx context.Context, m *postgres.Migrator, out io.Writer) error {
			migrations, err := m.Status(ctx)
			if err != nil {
				return err
			}
			for _, mg := range migrations {
				state := "pending"
				if mg.IsApplied {
					state = "applied " + mg.AppliedAt.Format(time.RFC3339)
				}
				_, _ = fmt.Fprintf(out, "%03d\t%s\t%s\n", mg.Version, mg.Name, state)
			}
			return nil
		}),
	})
	return migrate
}

// ══════════════════════════════════════════════════════════════════════════════
// OPERATOR COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func newProfileCmd() *cobra.Command {
	profile := &cobra.Command{Use: "profile", Short: "Inspect and create progress records"}

	profile.AddCommand(&cobra.Command{
		Use:   "ensure <user-id>",
		Short: "Create the starting record for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				view, err := command.NewProfileHandler(a.engine).Ensure(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	})

	profile.AddCommand(&cobra.Command{
		Use:   "show <user-id>",
		Short: "Print a user's progress summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				h := query.NewGetProgressSummaryHandler(a.store.Repositories(), a.summaryCacheOrNil(), a.log)
				summary, err := h.Handle(cmd.Context(), query.GetProgressSummaryQuery{UserID: args[0]})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	})
	return profile
}

func newAwardCmd() *cobra.Command {
	var source, description string

	award := &cobra.Command{
		Use:   "award <user-id> <amount>",
		Short: "Grant XP to a user and record it in the ledger",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.Atoi(args[1])
			if err != nil || amount <= 0 {
				return fmt.Errorf("amount %q must be a positive integer", args[1])
			}
			return withApp(cmd.Context(), func(a *app) error {
				res, err := command.NewProfileHandler(a.engine).Award(cmd.Context(), command.AwardXPCommand{
					UserID:      args[0],
					Amount:      amount,
					Source:      source,
					Description: description,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	award.Flags().StringVar(&source, "source", "task_completion", "xp source: task_completion|focus_session|streak_bonus")
	award.Flags().StringVar(&description, "description", "Manual award", "ledger description")
	return award
}

func newFocusCmd() *cobra.Command {
	focus := &cobra.Command{Use: "focus", Short: "Focus session tools"}

	var minutes int
	var notes string
	logCmd := &cobra.Command{
		Use:   "log <user-id> --minutes <n>",
		Short: "Record a finished focus session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				res, err := command.NewLogFocusSessionHandler(a.engine).Handle(cmd.Context(), command.LogFocusSessionCommand{
					UserID:          args[0],
					DurationMinutes: minutes,
					Notes:           notes,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	logCmd.Flags().IntVar(&minutes, "minutes", 0, "session length in minutes")
	logCmd.Flags().StringVar(&notes, "notes", "", "free-form notes")

	focus.AddCommand(logCmd)
	return focus
}
