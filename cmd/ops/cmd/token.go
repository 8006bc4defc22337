package cmd

import (
	"fmt"

	"github.com/promptlab/promptlab/internal/repository"
	"github.com/promptlab/promptlab/internal/service"
	"github.com/spf13/cobra"
)

// TokenCmd mints a JWT for an existing user, for local testing against the API.
func TokenCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			user, err := repository.NewUserRepository(e.db).ByID(userID)
			if err != nil {
				return fmt.Errorf("user %s: %w", userID, err)
			}

			auth := service.NewAuthService(e.cfg.JWTSecret, e.cfg.BotAPIToken, e.cfg.JWTExpiry, e.cfg.IsProduction())
			token, err := auth.GenerateJWT(user)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
