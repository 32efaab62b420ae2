package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/platformbridge/backend/internal/application/dispatch"
	appintegration "github.com/platformbridge/backend/internal/application/integration"
	"github.com/platformbridge/backend/internal/domain/integration"
	"github.com/platformbridge/backend/internal/infrastructure/config"
	"github.com/platformbridge/backend/internal/infrastructure/discovery"
	"github.com/platformbridge/backend/internal/infrastructure/httpclient"
	"github.com/platformbridge/backend/internal/infrastructure/logger"
	"github.com/platformbridge/backend/internal/infrastructure/persistence"
)

// exitError carries a non-default process exit code
type exitError struct {
	code   int
	reason string
}

func (e *exitError) Error() string { return e.reason }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		_, _ = fmt.Fprintln(stderr, exit.reason)
		return exit.code
	}
	_, _ = fmt.Fprintln(stderr, err)
	return 1
}

// app holds what every subcommand shares once the root flags are parsed
type app struct {
	out      io.Writer
	logLevel string
	timeout  time.Duration

	log *zap.Logger
	cfg *config.Config
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "bridgectl",
		Short:         "Platform bridge operator tool",
		Long:          "Operator tool for the platform bridge.\nConfiguration is read from config.toml and PBR_ environment variables.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = logger.Sync(a.log)
			}
		},
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 30*time.Second, "Overall command timeout")

	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newStatsCmd(a))
	root.AddCommand(newScanCmd(a))
	root.AddCommand(newProbeCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	log, err := logger.New(&logger.Config{
		Level:      a.logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: logger.DefaultTimeFormat,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	a.log = log

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	a.cfg = cfg

	ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
	cobra.OnFinalize(cancel)
	cmd.SetContext(ctx)
	return nil
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the viewer store schema",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(); err != nil {
				return fmt.Errorf("migrate viewer store: %w", err)
			}
			a.log.Info("Viewer store migrated", zap.String("driver", db.Driver))
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show viewer count and connection pool statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			count, err := persistence.NewGormViewerRepository(db.DB).Count(cmd.Context(), integration.HomePlatform)
			if err != nil {
				return fmt.Errorf("count viewers: %w", err)
			}
			stats, err := db.Stats()
			if err != nil {
				return fmt.Errorf("read connection stats: %w", err)
			}
			return a.printJSON(map[string]any{
				"driver":      db.Driver,
				"viewers":     count,
				"connections": stats,
			})
		},
	}
}

func newScanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Detect sibling integrations and check their versions",
		Long:  "Detect sibling integrations and check their versions.\nExits with code 2 when an incompatible sibling is found.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			startup := appintegration.NewStartupService(a.newRegistry(), a.log)
			report := startup.Initialize(cmd.Context())
			if err := a.printJSON(report); err != nil {
				return err
			}
			if report.HasCriticalWarnings() {
				return &exitError{code: 2, reason: "incompatible integrations detected"}
			}
			return nil
		},
	}
}

func newProbeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <platform>",
		Short: "Check that a sibling answers on its status route",
		Long:  "Check that a sibling answers on its status route.\nExits with code 2 when the sibling is unreachable.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, err := integration.ParsePlatformID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			registry := a.newRegistry()
			registry.Scan(ctx)

			dispatcher := dispatch.New(
				registry,
				httpclient.New(httpclient.WithLogger(a.log)),
				discovery.NewSettingsPortProvider(a.cfg.Integrations.SettingsFile),
				dispatch.NewLocalHandlers(),
				dispatch.WithHost(a.cfg.Integrations.Host),
				dispatch.WithDefaultPort(a.cfg.Integrations.DefaultPort),
				dispatch.WithLogger(a.log),
			)
			result, err := dispatcher.Probe(ctx, platform)
			if err != nil {
				return err
			}
			if err := a.printJSON(result); err != nil {
				return err
			}
			if !result.Reachable {
				return &exitError{code: 2, reason: fmt.Sprintf("%s integration is unreachable", platform)}
			}
			return nil
		},
	}
}

func (a *app) openDatabase() (*persistence.Database, error) {
	db, err := persistence.NewDatabase(&a.cfg.Database, a.log, gormlogger.Warn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func (a *app) newRegistry() *discovery.Registry {
	return discovery.NewRegistry(
		discovery.NewFileScriptLister(a.cfg.Discovery.ScriptsFile),
		discovery.NewFileVersionLoader(a.cfg.Discovery.ScriptsDir, a.log),
		discovery.WithLogger(a.log),
	)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
