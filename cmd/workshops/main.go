package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"workshops.nibm.studio/cmd/workshops/app"
	"workshops.nibm.studio/internal/catalog"
	"workshops.nibm.studio/internal/config"
	"workshops.nibm.studio/internal/database"
	"workshops.nibm.studio/internal/workshop"
)

func main() {
	defer shutdownTelemetry()
	if err := rootCmd.Execute(); err != nil {
		shutdownTelemetry()
		log.Fatal(err)
	}
}

var (
	rootCmd = &cobra.Command{
		Use:               "workshops",
		Short:             "Workshop catalog server and utilities",
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the catalog server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	refreshCmd = &cobra.Command{
		Use:   "refresh",
		Short: "Assemble the catalog once and print it",
		Args:  cobra.NoArgs,
		RunE:  runRefresh,
	}
	fetchCmd = &cobra.Command{
		Use:   "fetch <repo>",
		Short: "Fetch, extract and classify a single repository",
		Long: "Fetch, extract and classify a single repository. With --snapshot the README\n" +
			"archived with that stored snapshot is used instead of the live one.",
		Args:  cobra.ExactArgs(1),
		RunE:  runFetch,
	}
	rateLimitCmd = &cobra.Command{
		Use:   "ratelimit",
		Short: "Show the GitHub API rate limit",
		Args:  cobra.NoArgs,
		RunE:  runRateLimit,
	}
	snapshotsCmd = &cobra.Command{
		Use:   "snapshots",
		Short: "List stored catalog snapshots",
		Args:  cobra.NoArgs,
		RunE:  runSnapshots,
	}
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Database migrations",
	}
	upCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  runMigrateUp,
	}
	downCmd = &cobra.Command{
		Use:   "down",
		Short: "Revert all applied migrations",
		RunE:  runMigrateDown,
	}

	// Flags
	configPath string
	output     string
	addr       string
	dsn        string
	limit      int
	snapshotID uint64

	cfg               *config.Config
	printer           *app.Printer
	shutdownTelemetry = func() {}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Optional config file (yaml, json or toml) using the environment variable names as keys")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Database source name in the format driver://dataSourceName. Falls back to DSN environment variable")
	serveCmd.Flags().StringVar(&addr, "addr", "", "Address to run the server on (host:port). If empty, uses HOST and PORT environment variables")
	fetchCmd.Flags().Uint64Var(&snapshotID, "snapshot", 0, "Re-extract from the README archived with this snapshot ID")
	snapshotsCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of snapshots to list")
	migrateCmd.AddCommand(upCmd, downCmd)
	rootCmd.AddCommand(serveCmd, refreshCmd, fetchCmd, rateLimitCmd, snapshotsCmd, migrateCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	format, err := app.ParseFormat(output)
	if err != nil {
		return err
	}
	cfg = config.New()
	if err := cfg.Load(configPath); err != nil {
		return err
	}
	if dsn != "" {
		cfg.Set("DSN", dsn)
	}
	config.SetupLog(cfg)
	cfg.Watch()

	shutdown, err := config.SetupTelemetry(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	shutdownTelemetry = shutdown

	printer = &app.Printer{W: cmd.OutOrStdout(), Format: format, Now: time.Now()}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalAddr := addr
	if finalAddr == "" {
		finalAddr = cfg.GetAddr()
	}
	return app.Serve(ctx, cfg, finalAddr)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	return withCatalog(cmd.Context(), func(ctx context.Context, c *catalog.Catalog) error {
		snap, err := c.Refresh(ctx)
		if err != nil {
			return err
		}
		printer.Now = snap.AssembledAt
		return printer.Collections(snap.Collections)
	})
}

func runFetch(cmd *cobra.Command, args []string) error {
	return withCatalog(cmd.Context(), func(ctx context.Context, c *catalog.Catalog) error {
		var w *workshop.Workshop
		var err error
		if snapshotID != 0 {
			w, err = c.InspectArchived(ctx, snapshotID, args[0])
		} else {
			w, err = c.Inspect(ctx, args[0])
		}
		if err != nil {
			return err
		}
		return printer.Workshop(w)
	})
}

func runRateLimit(cmd *cobra.Command, args []string) error {
	return withCatalog(cmd.Context(), func(ctx context.Context, c *catalog.Catalog) error {
		rl, err := c.GitHub().ProbeRateLimit(ctx)
		if err != nil {
			return err
		}
		return printer.RateLimit(rl)
	})
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	db, err := database.NewForConfig(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := db.ListSnapshots(cmd.Context(), limit)
	if err != nil {
		return err
	}
	return printer.Snapshots(list)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	mg, err := database.NewMigratorForConf(cfg)
	if err != nil {
		return err
	}
	defer mg.Close()

	return mg.Up()
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	mg, err := database.NewMigratorForConf(cfg)
	if err != nil {
		return err
	}
	defer mg.Close()

	return mg.Down()
}

func withCatalog(ctx context.Context, fn func(context.Context, *catalog.Catalog) error) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	c, err := catalog.NewForConfig(cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}
