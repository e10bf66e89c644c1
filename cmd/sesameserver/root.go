package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/config"
)

// Default configuration file path
const defaultConfigPath = "configs/sesame.yaml"

// options holds the persistent flags shared by every command.
type options struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "sesameserver",
		Short:         "SESAME BLE lock server",
		Long:          "sesameserver pairs with SESAME remotes and keypads, forwards their events and keeps their lock displays in sync.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadDotEnv(opts.envFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"configuration file (default $SESAME_CONFIG or "+defaultConfigPath+")")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "environment file loaded before the configuration")

	root.AddCommand(
		newServeCmd(opts),
		newResetCmd(opts),
		newTokenCmd(opts),
		newCheckConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadDotEnv loads environment variables from path. If the file does not exist
// it is silently ignored so that .env files remain optional. Variables already
// set in the environment win.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// resolveConfigPath returns the configuration file path: the --config flag,
// then SESAME_CONFIG, then the default.
func (o *options) resolveConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	if path := os.Getenv("SESAME_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig loads and validates the configuration.
func (o *options) loadConfig() (*config.Config, string, error) {
	path := o.resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, path, nil
}
