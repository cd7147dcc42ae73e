package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cohortlabs/cohort-stack/membership/internal/tokens"
)

func newTokenCmd() *cobra.Command {
	var (
		userID string
		roles  []string
		secret string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for request envelopes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				secret = cfg.Auth.JWTSecret
				if ttl == 0 {
					ttl = cfg.Auth.TokenTTL
				}
			}
			if secret == "" {
				return errors.New("no signing secret: set auth.jwt_secret or pass --secret")
			}

			token, err := tokens.NewVerifier(secret, ttl).GenerateAccessToken(userID, roles)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "user the token is issued to")
	cmd.Flags().StringSliceVar(&roles, "roles", nil, "comma-separated roles")
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC signing secret (default: auth.jwt_secret)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: auth.token_ttl)")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}
