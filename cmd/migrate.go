package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/yashasviy/bank-ledger-api/config"
	"github.com/yashasviy/bank-ledger-api/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the accounts schema in the database at DB_URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		if cfg.DBURL == "" {
			return errors.New("DB_URL is not set")
		}
		logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		sqlDB, err := db.Open(cmd.Context(), cfg.DBURL)
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		if err := db.Initialize(cmd.Context(), sqlDB); err != nil {
			return err
		}
		logger.Info("schema ready")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
