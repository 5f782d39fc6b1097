package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/garrettladley/rally/internal/notify"
	"github.com/garrettladley/rally/internal/service/token"
)

func loginCmd() *cobra.Command {
	var lifetime time.Duration

	cmd := &cobra.Command{
		Use:   "login <user-id>",
		Short: "Mint a development token and store it",
		Long:  "Signs a token with AUTH_JWT_SECRET, the same secret the server validates with, and stores it as the current credential.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("AUTH_JWT_SECRET is not set")
			}

			raw, expiry, err := token.NewIssuer([]byte(cfg.JWTSecret), lifetime).Issue(args[0])
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}

			store, err := openCredentialStore(cfg)
			if err != nil {
				return err
			}
			cred := &notify.Credential{
				UserID: args[0],
				Token:  &oauth2.Token{AccessToken: raw, TokenType: "Bearer", Expiry: expiry},
			}
			if err := store.Save(cred); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (expires %s)\n", args[0], expiry.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().DurationVar(&lifetime, "lifetime", token.DefaultLifetime, "token lifetime")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openCredentialStore(cfg)
			if err != nil {
				return err
			}
			if err := store.Remove(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}
