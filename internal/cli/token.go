package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rfqmarket/internal/auth"
	"rfqmarket/internal/config"
)

// TokenCmd returns the token command
func TokenCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			token, err := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer).GenerateToken(userID)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id for the sub claim")
	cmd.MarkFlagRequired("user")
	return cmd
}
