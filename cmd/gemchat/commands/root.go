// Package commands holds the gemchat command line.
package commands

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/pliu/gemchat/internal/config"
	"github.com/pliu/gemchat/internal/logging"
	"github.com/pliu/gemchat/internal/store/sqlstore"
	"github.com/spf13/cobra"
)

var (
	envFile  string
	logLevel string
)

// NewRootCmd builds the gemchat command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gemchat",
		Short: "Gemini-backed chat server",
		Long: `gemchat serves a chat API backed by Google Gemini, with live web search,
file uploads and conversation export.

Settings come from the environment, optionally loaded from a .env file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(envFile)
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading settings")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewPruneCacheCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadEnv loads path into the environment without overriding variables that
// are already set. A missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// setup reads the configuration and builds the logger every command shares.
func setup(cmd *cobra.Command) (*config.Config, *log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger := logging.New(cfg.LogLevel, cmd.ErrOrStderr())
	return cfg, logger, nil
}

func openStore(cfg *config.Config) (*sqlstore.SQLStore, error) {
	s, err := sqlstore.New(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DatabaseDriver, err)
	}
	return s, nil
}
