package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	"github.com/garrettladley/rally/internal/protocol"
	"github.com/garrettladley/rally/internal/service/notification"
	"github.com/garrettladley/rally/internal/service/token"
	"github.com/garrettladley/rally/internal/version"
	"github.com/garrettladley/rally/internal/xcontext"
	"github.com/garrettladley/rally/internal/xerrors"
	"github.com/garrettladley/rally/internal/xslog"
)

const (
	outboundBuffer      = 16
	defaultWriteTimeout = 10 * time.Second
	defaultReadLimit    = 64 << 10
)

var (
	errGoingAway          = errors.New("server shutting down")
	errSubscriptionClosed = errors.New("subscription closed")
)

// authRejection is a failure the client is told about with auth_error.
type authRejection struct {
	message string
}

func (e *authRejection) Error() string { return e.message }

type SocketConfig struct {
	// AuthTimeout bounds the wait for the authenticate frame. Zero waits
	// until the client hangs up.
	AuthTimeout    time.Duration
	InboundRate    float64
	InboundBurst   int
	WriteTimeout   time.Duration
	ReadLimit      int64
	OriginPatterns []string
}

type Socket struct {
	tokens  token.Service
	service notification.Service
	cfg     SocketConfig
}

func NewSocket(tokens token.Service, service notification.Service, cfg SocketConfig) *Socket {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	if cfg.InboundRate <= 0 {
		cfg.InboundRate = float64(rate.Inf)
	}
	cfg.InboundBurst = max(cfg.InboundBurst, 1)
	return &Socket{tokens: tokens, service: service, cfg: cfg}
}

// HandleSocket handles GET /ws. The first frame must authenticate; after
// that the socket carries live notifications out and read receipts and
// pings in.
func (h *Socket) HandleSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := xslog.FromContext(ctx)

	if xcontext.IsShutdownInProgress(ctx) {
		xerrors.WriteError(ctx, w, xerrors.ServiceUnavailable(xerrors.WithMessage(errGoingAway.Error())))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.cfg.OriginPatterns})
	if err != nil {
		logger.WarnContext(ctx, "websocket accept failed", xslog.Error(err))
		return
	}
	defer conn.CloseNow() //nolint:errcheck
	conn.SetReadLimit(h.cfg.ReadLimit)

	// io never runs on ctx: a cancelled read closes the socket with
	// policy-violation, and shutdown has to close with going-away.
	ioCtx := context.WithoutCancel(ctx)

	userID, err := h.authenticate(ctx, ioCtx, conn)
	if err != nil {
		h.reject(ctx, ioCtx, conn, err)
		return
	}
	ctx, logger = xslog.With(ctx, xslog.UserID(userID))

	frames, unsubscribe, err := h.service.Subscribe(ctx, userID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to subscribe", xslog.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer unsubscribe()

	ack, err := protocol.AuthenticatedFrame(userID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to encode authenticated frame", xslog.Error(err))
		return
	}
	if err := h.write(ioCtx, conn, ack); err != nil {
		logger.WarnContext(ctx, "failed to confirm authentication", xslog.Error(err))
		return
	}

	openedAt := time.Now()
	logger.InfoContext(ctx, "channel opened",
		xslog.ChannelGroup(userID, r.Header.Get(version.Header), openedAt))

	out := make(chan []byte, outboundBuffer)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.readLoop(gctx, ioCtx, conn, userID, out)
	})
	g.Go(func() error {
		err := h.writeLoop(ctx, gctx, ioCtx, conn, frames, out)
		// the reader only wakes once the socket closes
		if errors.Is(err, errGoingAway) {
			_ = conn.Close(websocket.StatusGoingAway, errGoingAway.Error())
		} else if err != nil {
			_ = conn.CloseNow()
		}
		return err
	})

	err = g.Wait()
	attrs := []any{xslog.Duration(time.Since(openedAt))}
	switch status := websocket.CloseStatus(err); {
	case errors.Is(err, errGoingAway) || ctx.Err() != nil:
		logger.InfoContext(ctx, "channel closed for shutdown", attrs...)
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		logger.InfoContext(ctx, "channel closed by client", attrs...)
	default:
		logger.WarnContext(ctx, "channel closed", append(attrs, xslog.Error(err))...)
	}
}

func (h *Socket) authenticate(ctx, ioCtx context.Context, conn *websocket.Conn) (string, error) {
	type result struct {
		data []byte
		err  error
	}
	results := make(chan result, 1)
	go func() {
		for {
			typ, data, err := conn.Read(ioCtx)
			if err != nil || typ == websocket.MessageText {
				results <- result{data: data, err: err}
				return
			}
		}
	}()

	var timeout <-chan time.Time
	if h.cfg.AuthTimeout > 0 {
		timer := time.NewTimer(h.cfg.AuthTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var res result
	select {
	case res = <-results:
	case <-timeout:
		return "", &authRejection{message: "authentication timed out"}
	case <-ctx.Done():
		return "", errGoingAway
	}
	if res.err != nil {
		return "", res.err
	}

	env, err := protocol.Decode(res.data)
	if err != nil || env.Type != protocol.TypeAuthenticate {
		return "", &authRejection{message: "authentication required"}
	}
	var req protocol.Authenticate
	if err := env.Into(&req); err != nil {
		return "", &authRejection{message: "malformed authenticate frame"}
	}

	userID, err := h.tokens.Validate(ctx, req.Token)
	switch {
	case errors.Is(err, token.ErrMissingToken):
		return "", &authRejection{message: "missing token"}
	case errors.Is(err, token.ErrInvalidToken):
		return "", &authRejection{message: "invalid or expired token"}
	case err != nil:
		return "", err
	}
	return userID, nil
}

func (h *Socket) reject(ctx, ioCtx context.Context, conn *websocket.Conn, err error) {
	logger := xslog.FromContext(ctx)

	var rejected *authRejection
	switch {
	case errors.As(err, &rejected):
		logger.InfoContext(ctx, "socket authentication rejected", xslog.Reason(rejected.message))
		if frame, ferr := protocol.AuthErrorFrame(rejected.message); ferr == nil {
			_ = h.write(ioCtx, conn, frame)
		}
		_ = conn.Close(websocket.StatusPolicyViolation, rejected.message)
	case errors.Is(err, errGoingAway):
		_ = conn.Close(websocket.StatusGoingAway, errGoingAway.Error())
	case websocket.CloseStatus(err) != -1:
		logger.DebugContext(ctx, "client left before authenticating")
	default:
		logger.ErrorContext(ctx, "socket authentication failed", xslog.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "authentication unavailable")
	}
}

func (h *Socket) readLoop(gctx, ioCtx context.Context, conn *websocket.Conn, userID string, out chan<- []byte) error {
	logger := xslog.FromContext(gctx)
	limiter := rate.NewLimiter(rate.Limit(h.cfg.InboundRate), h.cfg.InboundBurst)

	pong, err := protocol.Encode(protocol.TypePong, nil)
	if err != nil {
		return err
	}

	for {
		typ, data, err := conn.Read(ioCtx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		if err := limiter.Wait(gctx); err != nil {
			return err
		}

		env, err := protocol.Decode(data)
		if err != nil {
			logger.DebugContext(gctx, "dropping malformed frame", xslog.Error(err))
			continue
		}

		switch env.Type {
		case protocol.TypePing:
			select {
			case out <- pong:
			case <-gctx.Done():
				return gctx.Err()
			}
		case protocol.TypeMarkRead:
			var id string
			if err := env.Into(&id); err != nil || id == "" {
				logger.DebugContext(gctx, "dropping malformed read receipt")
				continue
			}
			if _, err := h.service.MarkRead(gctx, userID, []string{id}); err != nil {
				logger.WarnContext(gctx, "failed to persist read receipt",
					xslog.NotificationID(id),
					xslog.Error(err))
			}
		case protocol.TypeAuthenticate:
			logger.DebugContext(gctx, "ignoring repeated authenticate")
		default:
			logger.DebugContext(gctx, "ignoring frame", xslog.Type(string(env.Type)))
		}
	}
}

func (h *Socket) writeLoop(ctx, gctx, ioCtx context.Context, conn *websocket.Conn, frames <-chan []byte, out <-chan []byte) error {
	for {
		select {
		case <-gctx.Done():
			if ctx.Err() != nil {
				return errGoingAway
			}
			return nil
		case frame, ok := <-frames:
			if !ok {
				if ctx.Err() != nil {
					return errGoingAway
				}
				return errSubscriptionClosed
			}
			if err := h.write(ioCtx, conn, frame); err != nil {
				return err
			}
		case frame := <-out:
			if err := h.write(ioCtx, conn, frame); err != nil {
				return err
			}
		}
	}
}

func (h *Socket) write(ioCtx context.Context, conn *websocket.Conn, frame []byte) error {
	ctx, cancel := context.WithTimeout(ioCtx, h.cfg.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, frame)
}
