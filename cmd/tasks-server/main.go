// Package main implements the tasks-server CLI.
package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/chepyr/go-todo-tree/internal/config"
	"github.com/chepyr/go-todo-tree/internal/logging"
	"github.com/spf13/cobra"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:          "tasks-server",
	Short:        "Personal task tracker with nested tasks",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file (default $TASKS_CONFIG)")
	rootCmd.AddCommand(serveCmd, migrateCmd, migrateLabelsCmd)
}

// setup loads the configuration and builds the process logger from it.
func setup() (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	log.SetDefault(logger)
	return cfg, logger, nil
}
