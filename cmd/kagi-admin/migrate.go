package main

import (
	"fmt"

	"github.com/kiranshivaraju/kagi/internal/config"
	"github.com/kiranshivaraju/kagi/internal/store"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbCfg, err := config.LoadDatabase()
			if err != nil {
				return err
			}
			if err := store.RunMigrations(dbCfg.URL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), success.Sprint("✓"), "database schema is up to date")
			return nil
		},
	}
}
