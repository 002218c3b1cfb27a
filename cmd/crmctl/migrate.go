package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"crmflow/internal/infrastructure/storage/postgres"
)

var listMigrations bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if listMigrations {
			migrations, err := postgres.Migrations()
			if err != nil {
				return err
			}
			for _, m := range migrations {
				fmt.Fprintln(cmd.OutOrStdout(), m.Version)
			}
			return nil
		}

		a, ctx, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		applied, err := postgres.Migrate(ctx, a.TxM)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&listMigrations, "list", false, "list embedded migrations without connecting")
}
