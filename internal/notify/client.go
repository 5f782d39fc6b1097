package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/garrettladley/rally/internal/protocol"
	"github.com/garrettladley/rally/internal/xslog"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	defaultWriteTimeout      = 10 * time.Second
)

var (
	errNotConnected = errors.New("channel not open")
	errAuthTimeout  = errors.New("no authentication acknowledgement")
	errStale        = errors.New("heartbeat unanswered")
)

// AuthError is reported when the server rejects the channel's credential.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return "authentication rejected: " + e.Message
}

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StateAuthenticated
	StateAuthFailed
	StateWaiting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateAuthFailed:
		return "auth_failed"
	case StateWaiting:
		return "waiting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Config struct {
	URL                string
	BufferSize         int
	Backoff            Backoff
	HeartbeatInterval  time.Duration
	HeartbeatMissLimit int           // 0 disables stale detection
	AuthTimeout        time.Duration // 0 waits for the transport
	WriteTimeout       time.Duration
}

// Hooks are invoked outside the client lock, on the goroutine that
// observed the event. They must return quickly; a panic is recovered and
// logged.
type Hooks struct {
	OnNotification       func(n protocol.Notification)
	OnInvitationsUpdated func()
	OnConnectionChange   func(connected bool)
	OnAuthError          func(err *AuthError)
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithClock(clock Clock) Option {
	return func(c *Client) { c.clock = clock }
}

func WithHooks(hooks Hooks) Option {
	return func(c *Client) { c.hooks = hooks }
}

// Client keeps at most one authenticated channel to the delivery server
// and mirrors pushed notifications into a Store.
type Client struct {
	cfg       Config
	tokens    oauth2.TokenSource
	transport Transport
	clock     Clock
	logger    *slog.Logger
	hooks     Hooks
	store     *Store

	mu        sync.Mutex
	state     State
	gen       uint64
	ctx       context.Context
	cancel    context.CancelFunc
	conn      Conn
	reconnect Timer
	authTimer Timer
	attempt   int
	userID    string
	live      liveness
}

var _ Connector = (*Client)(nil)

func NewClient(cfg Config, tokens oauth2.TokenSource, transport Transport, opts ...Option) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	cfg.Backoff = cfg.Backoff.withDefaults()

	c := &Client{
		cfg:       cfg,
		tokens:    tokens,
		transport: transport,
		clock:     realClock{},
		logger:    slog.Default(),
		store:     NewStore(cfg.BufferSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.live = liveness{interval: cfg.HeartbeatInterval, missLimit: cfg.HeartbeatMissLimit}
	return c
}

func (c *Client) Store() *Store { return c.store }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected is true only while the channel is authenticated.
func (c *Client) IsConnected() bool {
	return c.State() == StateAuthenticated
}

// UserID is the id the server confirmed for the current channel.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Connect opens a channel unless one is already open or opening. A
// pending reconnect is replaced by an immediate attempt.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateConnecting, StateAuthenticating, StateAuthenticated:
		return
	}
	c.beginLocked()
}

// Disconnect cancels any pending reconnect, stops the heartbeat and closes
// the channel. It is safe to call repeatedly.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	wasConnected := c.state == StateAuthenticated
	wasIdle := c.state == StateIdle
	cleanup := c.teardownLocked()
	c.state = StateIdle
	c.attempt = 0
	c.userID = ""
	c.mu.Unlock()

	cleanup()
	if !wasIdle {
		c.logger.Info("notification channel disconnected")
	}
	if wasConnected {
		c.flush(c.connectionChanged(false))
	}
}

func (c *Client) beginLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	if _, err := c.tokens.Token(); err != nil {
		c.logger.Info("not connecting without a valid session", xslog.Error(err))
		c.state = StateIdle
		return
	}

	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.ctx, c.cancel = ctx, cancel
	c.state = StateConnecting

	go c.run(ctx, gen)
}

func (c *Client) run(ctx context.Context, gen uint64) {
	conn, err := c.transport.Dial(ctx, c.cfg.URL)
	if err != nil {
		c.closed(gen, err)
		return
	}

	if !c.opened(gen, conn) {
		_ = conn.Close()
		return
	}

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			c.closed(gen, err)
			return
		}
		c.receive(gen, data)
	}
}

// opened adopts conn as the current channel and authenticates it with the
// session's token as it is right now.
func (c *Client) opened(gen uint64, conn Conn) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}

	tok, err := c.tokens.Token()
	if err != nil {
		c.logger.Info("session ended before authentication", xslog.Error(err))
		cleanup := c.teardownLocked()
		c.state = StateIdle
		c.mu.Unlock()
		cleanup()
		return false
	}

	c.conn = conn
	c.state = StateAuthenticating

	frame, err := protocol.AuthenticateFrame(tok.AccessToken)
	if err == nil {
		err = c.writeLocked(frame)
	}
	if err != nil {
		after := c.lostLocked(fmt.Errorf("failed to send authenticate: %w", err))
		c.mu.Unlock()
		c.flush(after...)
		return false
	}

	if c.cfg.AuthTimeout > 0 {
		c.authTimer = c.clock.AfterFunc(c.cfg.AuthTimeout, func() { c.authExpired(gen) })
	}
	c.mu.Unlock()

	c.logger.Debug("notification channel open, authenticating")
	return true
}

func (c *Client) authExpired(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateAuthenticating {
		c.mu.Unlock()
		return
	}
	c.authTimer = nil
	after := c.lostLocked(errAuthTimeout)
	c.mu.Unlock()
	c.flush(after...)
}

// closed handles the end of channel gen as reported by its reader.
func (c *Client) closed(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	after := c.lostLocked(err)
	c.mu.Unlock()
	c.flush(after...)
}

// lostLocked tears down a channel that ended without Disconnect and
// schedules the single reconnect.
func (c *Client) lostLocked(err error) []func() {
	switch c.state {
	case StateIdle, StateWaiting, StateAuthFailed:
		return nil
	}

	wasConnected := c.state == StateAuthenticated
	reason := ReasonOf(err)
	after := []func(){c.teardownLocked()}

	c.logger.Warn("notification channel lost",
		xslog.Reason(reason.String()),
		xslog.Error(err),
	)

	if reason == CloseClient {
		c.state = StateIdle
	} else {
		c.scheduleReconnectLocked()
	}

	if wasConnected {
		after = append(after, c.connectionChanged(false))
	}
	return after
}

func (c *Client) scheduleReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}

	if c.cfg.Backoff.exhausted(c.attempt) {
		c.logger.Warn("giving up on notification channel", xslog.Attempt(c.attempt))
		c.state = StateIdle
		return
	}

	delay := c.cfg.Backoff.next(c.attempt)
	c.attempt++
	c.state = StateWaiting

	gen := c.gen
	c.reconnect = c.clock.AfterFunc(delay, func() { c.retry(gen) })

	c.logger.Info("notification channel reconnect scheduled",
		xslog.Attempt(c.attempt),
		xslog.Backoff(delay),
	)
}

func (c *Client) retry(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen || c.state != StateWaiting {
		return
	}
	c.reconnect = nil
	c.beginLocked()
}

// teardownLocked retires the current channel: later events tagged with
// its generation are ignored. The returned func closes the connection and
// must run after the lock is released.
func (c *Client) teardownLocked() func() {
	c.gen++
	c.live.stop()
	if c.authTimer != nil {
		c.authTimer.Stop()
		c.authTimer = nil
	}

	conn, cancel := c.conn, c.cancel
	c.conn, c.cancel, c.ctx = nil, nil, nil

	return func() {
		if conn != nil {
			if err := conn.Close(); err != nil {
				c.logger.Debug("closing notification channel", xslog.Error(err))
			}
		}
		if cancel != nil {
			cancel()
		}
	}
}

func (c *Client) receive(gen uint64, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		c.logger.Warn("dropping malformed frame", xslog.Error(err))
		return
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}

	var after []func()
	switch env.Type {
	case protocol.TypeAuthenticated:
		after = c.authenticatedLocked(env)
	case protocol.TypeAuthError:
		after = c.rejectedLocked(env)
	case protocol.TypeNotification:
		after = c.ingestLocked(env)
	case protocol.TypeInvitationsUpdated:
		after = append(after, c.invitationsUpdated())
	case protocol.TypePong:
		c.live.pong()
	default:
		c.logger.Debug("ignoring frame", xslog.Type(string(env.Type)))
	}
	c.mu.Unlock()

	c.flush(after...)
}

func (c *Client) authenticatedLocked(env protocol.Envelope) []func() {
	if c.state != StateAuthenticating {
		return nil
	}

	var p protocol.Authenticated
	if err := env.Into(&p); err != nil {
		c.logger.Warn("authenticated frame without user", xslog.Error(err))
	}

	if c.authTimer != nil {
		c.authTimer.Stop()
		c.authTimer = nil
	}
	c.state = StateAuthenticated
	c.attempt = 0
	c.userID = p.UserID
	c.startLivenessLocked()

	c.logger.Info("notification channel authenticated", xslog.UserID(p.UserID))
	return []func(){c.connectionChanged(true)}
}

func (c *Client) rejectedLocked(env protocol.Envelope) []func() {
	var p protocol.AuthError
	if err := env.Into(&p); err != nil {
		c.logger.Warn("auth_error frame without message", xslog.Error(err))
	}
	authErr := &AuthError{Message: p.Message}

	wasConnected := c.state == StateAuthenticated
	after := []func(){c.teardownLocked()}
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.state = StateAuthFailed
	c.userID = ""

	c.logger.Warn("notification channel authentication rejected", xslog.Error(authErr))

	after = append(after, c.authFailed(authErr))
	if wasConnected {
		after = append(after, c.connectionChanged(false))
	}
	return after
}

func (c *Client) ingestLocked(env protocol.Envelope) []func() {
	var n protocol.Notification
	if err := env.Into(&n); err != nil {
		c.logger.Warn("dropping malformed notification", xslog.Error(err))
		return nil
	}
	if n.ID == "" {
		c.logger.Warn("dropping notification without id")
		return nil
	}

	if !c.store.Add(n) {
		c.logger.Debug("duplicate notification absorbed", xslog.NotificationID(n.ID))
		return nil
	}
	return []func(){c.notified(n)}
}

func (c *Client) writeLocked(frame []byte) error {
	if c.conn == nil || c.ctx == nil {
		return errNotConnected
	}
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.WriteTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, frame); err != nil {
		// a failed write on the live channel is never our own disconnect
		if ReasonOf(err) == CloseServer {
			return err
		}
		return &CloseError{Reason: CloseTransport, Err: err}
	}
	return nil
}

func (c *Client) flush(fns ...func()) {
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}

func (c *Client) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("notification hook panicked",
				xslog.Hook(name),
				xslog.ErrorAny(r),
			)
		}
	}()
	fn()
}

func (c *Client) connectionChanged(connected bool) func() {
	if c.hooks.OnConnectionChange == nil {
		return nil
	}
	return func() {
		c.guard("connection_change", func() { c.hooks.OnConnectionChange(connected) })
	}
}

func (c *Client) notified(n protocol.Notification) func() {
	if c.hooks.OnNotification == nil {
		return nil
	}
	return func() {
		c.guard("notification", func() { c.hooks.OnNotification(n) })
	}
}

func (c *Client) invitationsUpdated() func() {
	if c.hooks.OnInvitationsUpdated == nil {
		return nil
	}
	return func() {
		c.guard("invitations_updated", c.hooks.OnInvitationsUpdated)
	}
}

func (c *Client) authFailed(err *AuthError) func() {
	if c.hooks.OnAuthError == nil {
		return nil
	}
	return func() {
		c.guard("auth_error", func() { c.hooks.OnAuthError(err) })
	}
}
