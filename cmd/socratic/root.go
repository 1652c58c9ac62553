package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/metalagman/socratic/internal/config"
	"github.com/metalagman/socratic/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// rootOptions carries the persistent flags to every subcommand.
type rootOptions struct {
	v         *viper.Viper
	debug     bool
	logFormat string
	jsonOut   bool

	// extra replaces app providers, used by tests to stub the oracle.
	extra []fx.Option
}

func (o *rootOptions) configPath() string {
	return o.v.GetString("config")
}

func defaultConfigPath() string {
	return filepath.Join(".socratic", "config.yaml")
}

// Execute runs the root command until it returns or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd, err := newRootCmd(&rootOptions{})
	if err != nil {
		return err
	}
	return cmd.ExecuteContext(ctx)
}

func newRootCmd(opts *rootOptions) (*cobra.Command, error) {
	opts.v = viper.New()
	cmd := &cobra.Command{
		Use:           "socratic",
		Short:         "socratic turns guided questioning into a project specification",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			logging.Init(opts.debug, opts.logFormat)
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			return nil
		},
	}
	flags := cmd.PersistentFlags()
	flags.String("config", defaultConfigPath(), "config file path")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.StringVar(&opts.logFormat, "log-format", logging.FormatConsole, "log format: console or json")
	flags.BoolVar(&opts.jsonOut, "json", false, "print results as JSON")
	if err := opts.v.BindPFlag("config", flags.Lookup("config")); err != nil {
		return nil, fmt.Errorf("bind config flag: %w", err)
	}
	if err := opts.v.BindEnv("config", config.EnvPrefix+"_CONFIG"); err != nil {
		return nil, fmt.Errorf("bind config env: %w", err)
	}

	cmd.AddCommand(
		initCmd(opts),
		projectCmd(opts),
		sessionCmd(opts),
		specCmd(opts),
		templateCmd(opts),
		conflictCmd(opts),
		gateCmd(opts),
		generateCmd(opts),
		checkQuestionCmd(opts),
		reconcileCmd(opts),
		serveCmd(opts),
		uiCmd(opts),
	)
	return cmd, nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
}
