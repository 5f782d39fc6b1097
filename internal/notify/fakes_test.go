package notify

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/garrettladley/rally/internal/protocol"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs every due callback on the calling
// goroutine, earliest first. Callbacks scheduled while advancing run too
// if they fall due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		c.now = next.at
		c.mu.Unlock()

		next.f()
	}
}

// Pending counts timers that have neither fired nor been stopped.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeTransport struct {
	mu       sync.Mutex
	dialErr  error
	writeErr error
	dials    int
	conns    []*fakeConn
	dialed   chan *fakeConn
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{dialed: make(chan *fakeConn, 16)}
}

func (t *fakeTransport) Dial(_ context.Context, _ string) (Conn, error) {
	t.mu.Lock()
	t.dials++
	if t.dialErr != nil {
		err := t.dialErr
		t.mu.Unlock()
		return nil, err
	}
	conn := newFakeConn()
	conn.writeErr = t.writeErr
	t.conns = append(t.conns, conn)
	t.mu.Unlock()

	t.dialed <- conn
	return conn, nil
}

func (t *fakeTransport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) failDials(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dialErr = err
}

// failWrites makes every channel dialed from now on reject writes.
func (t *fakeTransport) failWrites(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

func (t *fakeTransport) next(tb testing.TB) *fakeConn {
	tb.Helper()
	select {
	case conn := <-t.dialed:
		return conn
	case <-time.After(2 * time.Second):
		tb.Fatal("no dial")
		return nil
	}
}

type fakeConn struct {
	in   chan []byte
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	written  [][]byte
	writeErr error
	endErr   error
	closed   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:   make(chan []byte, 16),
		done: make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.endErr != nil {
			return nil, c.endErr
		}
		return nil, &CloseError{Reason: CloseClient}
	case <-ctx.Done():
		return nil, &CloseError{Reason: CloseClient, Err: ctx.Err()}
	}
}

func (c *fakeConn) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("write on closed conn")
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, slices.Clone(data))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// serverClose ends the read side with a going-away close from the server.
func (c *fakeConn) serverClose() {
	c.mu.Lock()
	c.endErr = &CloseError{Reason: CloseServer, Code: 1001}
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
}

func (c *fakeConn) push(frame []byte) {
	c.in <- frame
}

func mustFrame(frame []byte, err error) []byte {
	if err != nil {
		panic(err)
	}
	return frame
}

// sent decodes the frames the client wrote, optionally only those of type t.
func (c *fakeConn) sent(tb testing.TB, t protocol.Type) []protocol.Envelope {
	tb.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []protocol.Envelope
	for _, data := range c.written {
		env, err := protocol.Decode(data)
		if err != nil {
			tb.Fatalf("client wrote malformed frame %q: %v", data, err)
		}
		if t == "" || env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

type recorder struct {
	mu          sync.Mutex
	connections []bool
	received    []string
	authErrors  []string
	invitations int
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnNotification: func(n protocol.Notification) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.received = append(r.received, n.ID)
		},
		OnInvitationsUpdated: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.invitations++
		},
		OnConnectionChange: func(connected bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.connections = append(r.connections, connected)
		},
		OnAuthError: func(err *AuthError) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.authErrors = append(r.authErrors, err.Message)
		},
	}
}

func (r *recorder) Connections() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.connections)
}

func (r *recorder) Received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.received)
}

func (r *recorder) AuthErrors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.authErrors)
}

func (r *recorder) Invitations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invitations
}

func credential(userID, token string) *Credential {
	return &Credential{
		UserID: userID,
		Token: &oauth2.Token{
			AccessToken: token,
			TokenType:   "Bearer",
			Expiry:      time.Now().Add(time.Hour),
		},
	}
}

func eventually(tb testing.TB, cond func() bool) {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			tb.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}
