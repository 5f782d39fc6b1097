package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/garrettladley/rally/internal/client/api"
	"github.com/garrettladley/rally/internal/notify"
	"github.com/garrettladley/rally/internal/session"
)

func historyCmd() *cobra.Command {
	var (
		limit      int
		unreadOnly bool
		kinds      string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent notifications without connecting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}

			history, err := client.History(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to load history: %w", err)
			}

			// reuse the client-side filter on the fetched page
			store := notify.NewStore(len(history.Notifications))
			store.Seed(history.Notifications, history.Unread)
			printList(cmd.OutOrStdout(), store.View(notify.Filter{
				UnreadOnly: unreadOnly,
				Kinds:      parseKinds(kinds),
			}), history.Unread)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of notifications to fetch (server default when 0)")
	cmd.Flags().BoolVarP(&unreadOnly, "unread", "u", false, "only show unread notifications")
	cmd.Flags().StringVarP(&kinds, "kinds", "k", "", "comma separated kinds to show")
	return cmd
}

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>...",
		Short: "Mark notifications read without connecting",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}

			updated, err := client.MarkRead(cmd.Context(), args...)
			if err != nil {
				return fmt.Errorf("failed to mark read: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "marked %d notification(s) read\n", updated)
			return nil
		},
	}
}

func newAPIClient() (*api.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cred, err := loadCredential(cfg)
	if err != nil {
		return nil, err
	}
	return api.New(cfg.ServerURL, oauth2.StaticTokenSource(cred.Token), session.NewID()), nil
}
