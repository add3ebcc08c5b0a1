package main

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/iris/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.StoreDriver != config.StoreDriverPostgres {
			logger.Infof("STORE_DRIVER is %s; nothing to migrate", cfg.StoreDriver)
			return nil
		}

		a := newApp(cfg, logger)
		if err := a.connectDatabase(cmd.Context()); err != nil {
			return err
		}
		defer a.db.Close()

		return a.migrate()
	},
}
