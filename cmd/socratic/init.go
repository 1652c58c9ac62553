package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/metalagman/socratic/internal/app"
	"github.com/metalagman/socratic/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func initCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize socratic in the current directory",
		Long:  "Initialize socratic by creating the state directory, the locks and templates directories, and a default config.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath := opts.configPath()
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			for _, dir := range []string{filepath.Dir(configPath), cfg.Storage.LocksDir, app.TemplatesDir(cfg)} {
				log.Info().Str("dir", dir).Msg("creating directory")
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create %s: %w", dir, err)
				}
			}

			if config.Exists(configPath) {
				log.Info().Str("path", configPath).Msg("config already exists, skipping")
			} else {
				log.Info().Str("path", configPath).Msg("installing default config")
				data, err := config.EncodeYAML(cfg)
				if err != nil {
					return err
				}
				if err := os.WriteFile(configPath, data, 0o644); err != nil {
					return fmt.Errorf("write default config: %w", err)
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), "socratic initialized successfully")
			return nil
		},
	}
}
