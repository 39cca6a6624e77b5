// Package main provides the constellation command line tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"constellation"
	"constellation/internal/logger"
	"constellation/service"
	sqlstore "constellation/sql"
	"constellation/sql/adapter"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// app is the state shared by every command run.
type app struct {
	logger   *zap.Logger
	store    *sqlstore.Service
	services *service.Services
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "constellation",
		Short: "Client and tag record store",
		Long: `constellation manages clients and tags stored over a relational
database. Indexed fields live in columns; everything else is kept in one
document column, stored natively when the server supports JSON.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML configuration file")
	flags.String("driver", "", "Database driver (sqlite, mysql, mariadb, postgres)")
	flags.String("file", "", "SQLite database file")
	flags.String("host", "", "Database host")
	flags.Int("port", 0, "Database port")
	flags.String("user", "", "Database user")
	flags.String("password", "", "Database password")
	flags.String("database", "", "Database name")
	flags.String("prefix", "", "Table name prefix")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (json, console)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "constellation v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the tables if they do not exist",
		RunE:  withApp(runMigrate),
	})

	capabilityCmd := &cobra.Command{
		Use:   "capability",
		Short: "Show whether documents are stored in a native JSON column",
		RunE:  withApp(runCapability),
	}
	capabilityCmd.Flags().Bool("refresh", false, "Forget the stored result and probe the server again")
	rootCmd.AddCommand(capabilityCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "drop",
		Short: "Drop every table of the store",
		RunE:  withApp(runDrop),
	})

	rootCmd.AddCommand(newClientCmd(), newTagCmd(), newExportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads --config when given and applies the connection flags on
// top of it.
func loadConfig(cmd *cobra.Command) (*constellation.Config, error) {
	flags := cmd.Flags()

	cfg := constellation.DefaultConfig()
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := constellation.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	var opts []constellation.Option
	if flags.Changed("driver") {
		v, _ := flags.GetString("driver")
		opts = append(opts, constellation.WithDriver(v))
	}
	if flags.Changed("file") {
		v, _ := flags.GetString("file")
		opts = append(opts, constellation.WithFilePath(v))
	}
	if flags.Changed("host") {
		v, _ := flags.GetString("host")
		opts = append(opts, constellation.WithHost(v))
	}
	if flags.Changed("port") {
		v, _ := flags.GetInt("port")
		opts = append(opts, constellation.WithPort(v))
	}
	if flags.Changed("user") || flags.Changed("password") {
		user, _ := flags.GetString("user")
		password, _ := flags.GetString("password")
		if !flags.Changed("user") {
			user = cfg.Username
		}
		if !flags.Changed("password") {
			password = cfg.Password
		}
		opts = append(opts, constellation.WithCredentials(user, password))
	}
	if flags.Changed("database") {
		v, _ := flags.GetString("database")
		opts = append(opts, constellation.WithDatabase(v))
	}
	if flags.Changed("prefix") {
		v, _ := flags.GetString("prefix")
		opts = append(opts, constellation.WithTablePrefix(v))
	}
	level, _ := flags.GetString("log-level")
	format, _ := flags.GetString("log-format")
	if level != "" || format != "" {
		if level == "" {
			level = cfg.Log.Level
		}
		if format == "" {
			format = cfg.Log.Format
		}
		opts = append(opts, constellation.WithLogging(level, format))
	}

	cfg.Apply(opts...)
	if cfg.Driver == "" && cfg.FilePath != "" {
		cfg.Driver = "sqlite"
	}
	return &cfg, nil
}

// withApp opens the store for the duration of one command.
func withApp(run func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "constellation")
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := sqlstore.OpenConfig(ctx, adapter.NewRegistry(), cfg, sqlstore.WithLogger(log))
		if err != nil {
			log.Error("failed to open store", zap.String("driver", cfg.Driver), zap.Error(err))
			return err
		}
		defer store.Close()

		a := &app{
			logger:   log,
			store:    store,
			services: service.New(store, service.WithLogger(log)),
		}
		return run(ctx, a, cmd, args)
	}
}

func runMigrate(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	native := a.store.Codec().Native()
	fmt.Fprintf(cmd.OutOrStdout(), "tables ready (documents: %s)\n", documentMode(native))
	return nil
}

func runCapability(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	detector := a.store.Detector()
	if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
		if err := detector.Reset(ctx); err != nil {
			return err
		}
		if _, err := detector.Probe(ctx); err != nil {
			return err
		}
		if err := detector.Persist(ctx); err != nil {
			return err
		}
	}

	native, err := detector.SupportsJSON(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if info, ok := detector.ServerInfo(); ok {
		fmt.Fprintf(out, "server: %s %s\n", info.Family, info.Version)
	}
	fmt.Fprintf(out, "documents: %s\n", documentMode(native))
	return nil
}

func runDrop(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	if err := a.store.DropTables(ctx); err != nil {
		return fmt.Errorf("dropping tables: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "tables dropped")
	return nil
}

func documentMode(native bool) string {
	if native {
		return "native json"
	}
	return "text"
}
