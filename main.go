package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/olehluchkiv/enhancer/internal/config"
	"github.com/olehluchkiv/enhancer/internal/logging"
)

var version = "dev"

func main() {
	// Setup signal handling with context cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the state shared by subcommands once flags are parsed.
type app struct {
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
	cleanup    func()
}

func newRootCmd() *cobra.Command {
	a := &app{cleanup: func() {}}
	root := &cobra.Command{
		Use:   "enhancer",
		Short: "Add change tracking to compiled entity classes",
		Long: `enhancer rewrites compiled JVM entity classes so that setters of tracked
properties report changes to the entity's propertyChanged hook, and hides
the persistence provider's generated accessors.

Configuration is read from enhancer.{yaml,json,toml} (or --config),
overridden by ENHANCER_* environment variables and then by flags.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.cleanup()
		},
	}
	root.SetVersionTemplate("enhancer version {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default: enhancer.{yaml,json,toml} in the working directory)")
	pf.String("log-file", "", "also write logs to this file")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "json", "log format (json, text)")

	root.AddCommand(newEnhanceCmd(a), newPropsCmd(a), newInspectCmd(a), newVersionCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	logger, cleanup, err := logging.Setup(cfg.Logging.File, level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	a.cleanup = cleanup
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// The root's config and logging setup is not needed here.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "enhancer version %s\n", version)
		},
	}
}
