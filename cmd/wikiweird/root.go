package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"wikiweird/internal/config"
	"wikiweird/internal/logger"
)

// commandContext carries the persistent flags shared by every subcommand.
type commandContext struct {
	configPath string
	envFile    string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "wikiweird",
		Short:         "Build a geographic dataset of unusual wiki articles",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&ctx.envFile, "env-file", ".env", "Environment file loaded before the configuration")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newDiffCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newResolveCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}

// loadConfig layers the .env file, the YAML file and WIKIWEIRD_* variables
// over the defaults. Callers apply their own flags and then Validate.
func (c *commandContext) loadConfig() (*config.Config, error) {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", c.envFile, err)
		}
	}

	cfg := config.Default()

	if c.configPath != "" {
		loaded, err := config.LoadConfig(c.configPath)
		if err != nil {
			return nil, err
		}

		cfg = loaded
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}

	return cfg, nil
}

func (c *commandContext) newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
}
