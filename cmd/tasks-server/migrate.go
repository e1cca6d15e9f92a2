package main

import (
	"database/sql"
	"fmt"

	"github.com/chepyr/go-todo-tree/internal/config"
	"github.com/chepyr/go-todo-tree/internal/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables if they don't exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		dbConn, err := initDB(cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		if err := db.EnsureSchema(cmd.Context(), dbConn, cfg.DBDriver); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		logger.Info("schema ready", "driver", cfg.DBDriver)
		return nil
	},
}

var migrateLabelsCmd = &cobra.Command{
	Use:   "migrate-labels",
	Short: "Rewrite legacy comma or JSON encoded labels as arrays",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		dbConn, err := initDB(cfg)
		if err != nil {
			return err
		}
		defer dbConn.Close()

		n, err := db.MigrateLegacyLabels(cmd.Context(), dbConn)
		if err != nil {
			return fmt.Errorf("migrate labels: %w", err)
		}
		logger.Info("labels migrated", "rows", n)
		return nil
	},
}

func initDB(cfg *config.Config) (*sql.DB, error) {
	dbConn, err := db.Connect(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return dbConn, nil
}
