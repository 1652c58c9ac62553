package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/metalagman/socratic/internal/app"
	"github.com/metalagman/socratic/internal/config"
	"github.com/metalagman/socratic/internal/pipeline"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// loadConfig reads the config file, or falls back to defaults when none exists.
func loadConfig(path string) (config.Config, error) {
	if !config.Exists(path) {
		log.Debug().Str("path", path).Msg("config not found, using defaults")
		cfg := config.Default()
		return cfg, cfg.Normalize()
	}
	return config.Load(viper.New(), path)
}

// openApp builds the service graph. Callers must run the returned close func.
func openApp(cmd *cobra.Command, opts *rootOptions) (*app.App, func(), error) {
	cfg, err := loadConfig(opts.configPath())
	if err != nil {
		return nil, func() {}, err
	}
	a, err := app.New(cmd.Context(), cfg, opts.extra...)
	if err != nil {
		return nil, func() {}, fmt.Errorf("start: %w", err)
	}
	return a, func() {
		if err := a.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("close")
		}
	}, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printResult reports one pipeline attempt.
func printResult(w io.Writer, opts *rootOptions, res pipeline.Result) error {
	if opts.jsonOut {
		return printJSON(w, res)
	}
	if !res.Committed {
		fmt.Fprintln(w, "not recorded: conflicts detected")
		for _, c := range res.Conflicts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Type, c.Severity, c.Description)
		}
		fmt.Fprintf(w, "maturity %d%%\n", res.MaturityScore)
		return nil
	}
	for _, s := range res.Specs {
		fmt.Fprintf(w, "+ %s/%s: %s\n", s.Category, s.Key, s.Value)
	}
	if len(res.Specs) == 0 {
		fmt.Fprintln(w, "no specifications found")
	}
	fmt.Fprintf(w, "maturity %d%%\n", res.MaturityScore)
	return nil
}
