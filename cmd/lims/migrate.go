package main

import (
	"github.com/labtrack/lims/pkg/common/logger"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update all tables and foreign keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.service.Migrate(cmd.Context()); err != nil {
			return err
		}
		logger.Log.Info("Migration complete")
		return nil
	},
}
