package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/garrettladley/rally/internal/config"
	"github.com/garrettladley/rally/internal/credential"
	"github.com/garrettladley/rally/internal/notify"
	"github.com/garrettladley/rally/internal/paths"
	"github.com/garrettladley/rally/internal/protocol"
	"github.com/garrettladley/rally/internal/xslog"
)

var errNotLoggedIn = errors.New("not logged in, run `rally login <user-id>` first")

func loadConfig() (config.Config, error) {
	cfg, err := config.Read()
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return cfg, nil
}

func openCredentialStore(cfg config.Config) (credential.Store, error) {
	dir, err := paths.EnsureDir()
	if err != nil {
		return nil, err
	}

	switch cfg.CredentialStore {
	case "", "file":
		path, err := paths.Credential()
		if err != nil {
			return nil, err
		}
		return credential.FileStore{Path: path}, nil
	case "keyring":
		ring, err := credential.OpenKeyring(dir)
		if err != nil {
			return nil, err
		}
		return credential.NewKeyringStore(ring), nil
	default:
		return nil, fmt.Errorf("unknown CREDENTIAL_STORE %q", cfg.CredentialStore)
	}
}

func loadCredential(cfg config.Config) (*notify.Credential, error) {
	store, err := openCredentialStore(cfg)
	if err != nil {
		return nil, err
	}
	cred, err := store.Load()
	if errors.Is(err, credential.ErrNotFound) {
		return nil, errNotLoggedIn
	}
	if err != nil {
		return nil, err
	}
	if !cred.Token.Valid() {
		return nil, fmt.Errorf("stored credential for %s expired at %s", cred.UserID, cred.Token.Expiry.Format(time.RFC3339))
	}
	return cred, nil
}

func newLogger() *slog.Logger {
	return xslog.NewLoggerFromEnv(os.Stderr, xslog.FormatText)
}

func printNotification(w io.Writer, n protocol.Notification) {
	marker := "*"
	if n.Read {
		marker = " "
	}
	_, _ = fmt.Fprintf(w, "%s %s  %-16s %s", marker, n.Timestamp.Local().Format(time.DateTime), n.Type, n.Title)
	if n.Message != "" {
		_, _ = fmt.Fprintf(w, ": %s", n.Message)
	}
	_, _ = fmt.Fprintf(w, "  (%s)\n", n.ID)
}

func printList(w io.Writer, records []protocol.Notification, unread int) {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "no notifications")
	}
	for _, n := range records {
		printNotification(w, n)
	}
	_, _ = fmt.Fprintf(w, "%d unread\n", unread)
}

func parseKinds(raw string) []protocol.Kind {
	if raw == "" {
		return nil
	}
	var kinds []protocol.Kind
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			kinds = append(kinds, protocol.Kind(part))
		}
	}
	return kinds
}
