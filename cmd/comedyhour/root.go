package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/comedyhour/internal/app"
	"github.com/MrWong99/comedyhour/internal/config"
)

// rootOptions is shared by every subcommand.
type rootOptions struct {
	configPath string
	envFiles   []string

	cfg   *config.Config
	level *slog.LevelVar
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{level: new(slog.LevelVar)}
	cmd := &cobra.Command{
		Use:           "comedyhour",
		Short:         "Two LLM comedians trading jokes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.load(cmd.Flags().Changed("config"))
		},
	}
	cmd.PersistentFlags().StringVarP(&o.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	cmd.PersistentFlags().StringSliceVar(&o.envFiles, "env-file", nil, "dotenv files to load before reading the config (default .env)")

	cmd.AddCommand(newServeCmd(o), newRunCmd(o))
	return cmd
}

// load reads the environment and the config file and installs the logger.
// A missing config file is only an error when the path was given explicitly.
func (o *rootOptions) load(explicit bool) error {
	if err := config.LoadEnv(o.envFiles...); err != nil {
		return err
	}

	cfg, err := config.Load(o.configPath)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		o.configPath = ""
		cfg, err = config.Load("")
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %q not found; omit --config to use the built-in show", o.configPath)
		}
		return err
	}
	o.cfg = cfg

	o.level.Set(app.Level(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(o.level))
	slog.Debug("configuration loaded", "config", o.configPath, "agents", len(cfg.Agents))
	return nil
}

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
