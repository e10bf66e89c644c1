package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-sesame/internal/auth"
)

func newTokenCmd(opts *options) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
			}
			token, err := auth.GenerateAccessToken(auth.TokenOptions{
				Subject: subject,
				Role:    auth.Role(role),
				Secret:  cfg.Security.JWT.Secret,
				Issuer:  cfg.Security.JWT.Issuer,
				TTL:     ttl,
			})
			if err != nil {
				return fmt.Errorf("minting token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (required)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleUser), "token role: user or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from security.jwt.access_token_ttl)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
