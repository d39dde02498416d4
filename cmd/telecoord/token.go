package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/navikt/telecoord/internal/auth"
	"github.com/navikt/telecoord/internal/config"
	"github.com/spf13/cobra"
)

var (
	tokenUser string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an HS256 token for local testing (requires JWT_SECRET)",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := config.GetAuthConfig().JWTSecret
		if secret == "" {
			return errors.New("JWT_SECRET is not set")
		}
		if tokenUser == "" {
			return errors.New("--user is required")
		}

		token, err := auth.MakeToken(tokenUser, secret, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id to put in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
}
