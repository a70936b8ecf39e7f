// Package cli is the orderdesk operator command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Additional-Code/orderdesk/internal/app"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/internal/migration"
	"github.com/Additional-Code/orderdesk/internal/seeder"
	ordersvc "github.com/Additional-Code/orderdesk/internal/service/order"
)

const stopTimeout = 10 * time.Second

// NewRootCommand builds the root orderdesk CLI command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "orderdesk",
		Short:         "Order desk operations toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		serveCmd("start", "Run the HTTP service", app.Module, "run"),
		newMigrateCmd(),
		newSeedCmd(),
		newOrdersCmd(),
		newWorkerCmd(),
	)
	return root
}

// Execute runs the orderdesk CLI until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

// serveCmd runs a long-lived application until the command context ends.
func serveCmd(use, short string, opts fx.Option, aliases ...string) *cobra.Command {
	return &cobra.Command{
		Use:     use,
		Aliases: aliases,
		Short:   short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application := fx.New(opts)
			if err := application.Start(cmd.Context()); err != nil {
				return err
			}
			<-cmd.Context().Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			return application.Stop(stopCtx)
		},
	}
}

// runWithApp starts opts quietly, runs fn and stops the application.
func runWithApp(ctx context.Context, opts fx.Option, fn func(context.Context) error) error {
	application := fx.New(opts, fx.NopLogger)
	if err := application.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = application.Stop(stopCtx)
	}()
	return fn(ctx)
}

// withMigrator resolves the migrator on top of the core modules.
func withMigrator(ctx context.Context, fn func(context.Context, *migration.Migrator) error) error {
	var mig *migration.Migrator
	return runWithApp(ctx, fx.Options(app.Core, migration.Module, fx.Populate(&mig)), func(ctx context.Context) error {
		return fn(ctx, mig)
	})
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, mig *migration.Migrator) error {
				if err := mig.Up(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			all, _ := cmd.Flags().GetBool("all")
			return withMigrator(cmd.Context(), func(ctx context.Context, mig *migration.Migrator) error {
				if err := mig.Down(ctx, steps, all); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations rolled back")
				return nil
			})
		},
	}
	down.Flags().Int("steps", 1, "Number of migration steps to roll back")
	down.Flags().Bool("all", false, "Roll back every applied migration")

	status := &cobra.Command{
		Use:   "status",
		Short: "Print the applied migration version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(_ context.Context, mig *migration.Migrator) error {
				version, err := mig.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
				return nil
			})
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert test-flagged sample orders (refused in production)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var seed *seeder.Seeder
			opts := fx.Options(app.Core, seeder.Module, fx.Populate(&seed))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				written, err := seed.Orders(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d test orders\n", written)
				return nil
			})
		},
	}
}

func newOrdersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Maintain stored orders",
	}

	importCmd := &cobra.Command{
		Use:   "import [file.json]",
		Short: "Import legacy orders into the pending partition",
		Long:  "Reads a JSON array of legacy order records. Re-running the same file imports nothing new.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readLegacyOrders(args[0])
			if err != nil {
				return err
			}
			var importer *ordersvc.Importer
			opts := fx.Options(app.Core, fx.Populate(&importer))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				report, err := importer.ImportLegacy(ctx, records)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "imported %d, skipped %d, rejected %d\n", report.Imported, report.Skipped, len(report.Rejected))
				for _, r := range report.Rejected {
					fmt.Fprintf(out, "  record %d (%s): %s\n", r.Index, r.ID, r.Reason)
				}
				return nil
			})
		},
	}

	purgeCmd := &cobra.Command{
		Use:   "purge-test",
		Short: "Delete every order flagged as test data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var janitor *ordersvc.Janitor
			opts := fx.Options(app.Core, fx.Populate(&janitor))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				removed, err := janitor.PurgeTestRecords(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, p := range entity.Partitions {
					fmt.Fprintf(out, "%s: %d removed\n", p, removed[p])
				}
				return nil
			})
		},
	}

	cmd.AddCommand(importCmd, purgeCmd)
	return cmd
}

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage background workers",
	}
	cmd.AddCommand(serveCmd("run", "Consume order lifecycle events", app.Worker))
	return cmd
}

func readLegacyOrders(path string) ([]ordersvc.LegacyOrder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeLegacyOrders(f)
}

func decodeLegacyOrders(r io.Reader) ([]ordersvc.LegacyOrder, error) {
	var records []ordersvc.LegacyOrder
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode legacy orders: %w", err)
	}
	return records, nil
}
