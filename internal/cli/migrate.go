package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rfqmarket/db/migrations"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  `Apply all embedded goose migrations. Safe to run multiple times.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			dialect := migrations.Dialect(e.cfg.Database.Driver)
			if status {
				return migrations.Status(e.conn.DB, dialect)
			}
			if err := migrations.Run(e.conn.DB, dialect); err != nil {
				return err
			}
			fmt.Printf("%s migrations applied (%s)\n", green("✓"), dialect)
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "Print migration status instead of applying")
	return cmd
}
