package cli

import (
	"fmt"

	"github.com/maximegiguere1one/chiroflow/internal/shared/infrastructure/migrations"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long: `Apply the embedded schema migrations for the configured database.

SQLite databases are migrated automatically on start; PostgreSQL
deployments run this once per release.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := RequireApp()
		if err != nil {
			return err
		}

		applied, err := migrations.Run(cmd.Context(), a.DBConn, cliLogger())
		if err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(applied) == 0 {
			fmt.Fprintln(out, "Schema is up to date")
			return nil
		}
		for _, v := range applied {
			fmt.Fprintf(out, "Applied %s\n", v)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
