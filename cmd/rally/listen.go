package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/garrettladley/rally/internal/client/api"
	"github.com/garrettladley/rally/internal/client/ws"
	"github.com/garrettladley/rally/internal/config"
	"github.com/garrettladley/rally/internal/notify"
	"github.com/garrettladley/rally/internal/protocol"
	"github.com/garrettladley/rally/internal/session"
	"github.com/garrettladley/rally/internal/xslog"
)

const listenHelp = `commands:
  list [kinds]   show buffered notifications, optionally only the given comma separated kinds
  unread         show buffered unread notifications
  read <id>...   mark notifications read
  readall        mark everything read
  status         show connection state
  logout         drop the session and disconnect
  quit           exit`

func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Connect and print notifications as they arrive",
		Long:  "Connects to the delivery server, prints live notifications, and reads commands from stdin.\n\n" + listenHelp,
		RunE:  runListen,
	}
}

func runListen(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cred, err := loadCredential(cfg)
	if err != nil {
		return err
	}

	logger := newLogger()
	sessionID := session.NewID()
	logger = logger.With(xslog.SessionID(sessionID))

	l := &listener{
		out:    cmd.OutOrStdout(),
		logger: logger,
	}

	sess := notify.NewSession()
	l.client = notify.NewClient(cfg.Notify(), sess, ws.NewTransport(sessionID),
		notify.WithLogger(logger),
		notify.WithHooks(notify.Hooks{
			OnNotification:       l.onNotification,
			OnInvitationsUpdated: l.onInvitationsUpdated,
			OnConnectionChange:   l.onConnectionChange,
			OnAuthError:          l.onAuthError,
		}),
	)
	l.api = api.New(cfg.ServerURL, sess, sessionID)
	l.binder = notify.NewBinder(sess, l.client)
	l.ctx = ctx
	l.cfg = cfg

	l.binder.SetCredential(cred)
	defer l.binder.Close()

	l.printf("listening as %s (type help for commands)\n", cred.UserID)
	return l.repl(ctx, cmd.InOrStdin())
}

type listener struct {
	ctx    context.Context
	cfg    config.Config
	out    io.Writer
	logger *slog.Logger
	client *notify.Client
	binder *notify.Binder
	api    *api.Client

	mu sync.Mutex // serializes writes to out
}

func (l *listener) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintf(l.out, format, args...)
}

func (l *listener) onNotification(n protocol.Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	printNotification(l.out, n)
}

func (l *listener) onInvitationsUpdated() {
	invites := l.client.Store().View(notify.Filter{
		UnreadOnly: true,
		Kinds:      []protocol.Kind{protocol.KindMatchInvitation, protocol.KindTeamInvitation},
	})
	l.printf("invitations updated, %d pending\n", len(invites))
}

func (l *listener) onConnectionChange(connected bool) {
	if !connected {
		l.printf("disconnected\n")
		return
	}
	l.printf("connected\n")
	// a gap may have opened while disconnected
	go l.seed()
}

func (l *listener) onAuthError(err *notify.AuthError) {
	l.printf("authentication rejected: %s\n", err.Message)
}

func (l *listener) seed() {
	history, err := l.api.History(l.ctx, l.cfg.BufferSize)
	if err != nil {
		l.logger.WarnContext(l.ctx, "failed to load history", xslog.Error(err))
		return
	}
	l.client.Store().Seed(history.Notifications, history.Unread)
	l.printf("%d unread\n", l.client.Store().Unread())
}

func (l *listener) repl(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// stdin closed; keep listening until interrupted
				<-ctx.Done()
				return nil
			}
			if quit := l.exec(strings.Fields(line)); quit {
				return nil
			}
		}
	}
}

func (l *listener) exec(fields []string) bool {
	if len(fields) == 0 {
		return false
	}

	store := l.client.Store()
	switch fields[0] {
	case "list", "ls":
		var filter notify.Filter
		if len(fields) > 1 {
			filter.Kinds = parseKinds(fields[1])
		}
		l.mu.Lock()
		printList(l.out, store.View(filter), store.Unread())
		l.mu.Unlock()
	case "unread":
		l.mu.Lock()
		printList(l.out, store.View(notify.Filter{UnreadOnly: true}), store.Unread())
		l.mu.Unlock()
	case "read":
		if len(fields) < 2 {
			l.printf("usage: read <id>...\n")
			return false
		}
		for _, id := range fields[1:] {
			l.client.MarkRead(id)
		}
		l.printf("%d unread\n", store.Unread())
	case "readall":
		l.client.MarkAllRead()
		l.printf("%d unread\n", store.Unread())
	case "status":
		l.printf("state=%s connected=%t user=%s buffered=%d unread=%d\n",
			l.client.State(), l.client.IsConnected(), l.client.UserID(), store.Len(), store.Unread())
	case "logout":
		l.binder.SetCredential(nil)
		l.printf("logged out for this session\n")
	case "help", "?":
		l.printf("%s\n", listenHelp)
	case "quit", "exit", "q":
		return true
	default:
		l.printf("unknown command %q, type help\n", fields[0])
	}
	return false
}
