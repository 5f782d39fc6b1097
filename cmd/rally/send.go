package main

import (
	"fmt"

	go_json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/garrettladley/rally/internal/client/api"
	"github.com/garrettladley/rally/internal/protocol"
	"github.com/garrettladley/rally/internal/session"
)

func sendCmd() *cobra.Command {
	var (
		kind    string
		message string
		data    string
	)

	cmd := &cobra.Command{
		Use:   "send <user-id> <title>",
		Short: "Publish a notification through the internal endpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			publisher, err := newPublisher()
			if err != nil {
				return err
			}

			n := protocol.Notification{
				Type:    protocol.Kind(kind),
				Title:   args[1],
				Message: message,
			}
			if data != "" {
				if err := go_json.Unmarshal([]byte(data), &n.Data); err != nil {
					return fmt.Errorf("invalid --data: %w", err)
				}
			}

			stored, err := publisher.Publish(cmd.Context(), args[0], n)
			if err != nil {
				return fmt.Errorf("failed to publish: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Published %s to %s\n", stored.ID, args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", string(protocol.KindSystem), "notification kind")
	cmd.Flags().StringVarP(&message, "message", "m", "", "notification body")
	cmd.Flags().StringVar(&data, "data", "", "JSON object attached to the notification")
	return cmd
}

func signalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signal <user-id>",
		Short: "Tell a user's clients that invitations changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			publisher, err := newPublisher()
			if err != nil {
				return err
			}
			if err := publisher.SignalInvitations(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to signal: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Signalled %s\n", args[0])
			return nil
		},
	}
}

func newPublisher() (*api.Publisher, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.PublishKey == "" {
		return nil, fmt.Errorf("PUBLISH_KEY is not set")
	}
	return api.NewPublisher(cfg.ServerURL, cfg.PublishKey, session.NewID()), nil
}
