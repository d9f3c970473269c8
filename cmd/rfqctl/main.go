package main

import (
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"rfqmarket/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rfqctl",
		Short: "rfqctl - maintenance tool for the RFQ marketplace",
		Long: `rfqctl applies migrations, runs the counter-offer expiry sweep,
loads development fixtures and issues development tokens.

Settings come from the same environment (and .env) as the API server.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.MigrateCmd())
	rootCmd.AddCommand(cli.ExpireOffersCmd())
	rootCmd.AddCommand(cli.SeedCmd())
	rootCmd.AddCommand(cli.TokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
