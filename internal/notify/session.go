package notify

import (
	"errors"
	"sync"

	"golang.org/x/oauth2"
)

var ErrNoSession = errors.New("no authenticated session")

// Credential is the (user, bearer token) pair issued by the
// authentication layer. The client never mutates it.
type Credential struct {
	UserID string
	Token  *oauth2.Token
}

func (c *Credential) valid() bool {
	return c != nil && c.UserID != "" && c.Token.Valid()
}

// Session holds the current credential and hands out its token at
// send time, so a refreshed token is picked up on the next authenticate.
type Session struct {
	mu   sync.RWMutex
	cred *Credential
}

var _ oauth2.TokenSource = (*Session)(nil)

func NewSession() *Session {
	return &Session{}
}

// Token returns ErrNoSession when no credential is set or it is expired.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.cred.valid() {
		return nil, ErrNoSession
	}
	tok := *s.cred.Token
	return &tok, nil
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return ""
	}
	return s.cred.UserID
}

func (s *Session) swap(cred *Credential) *Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cred
	s.cred = cred
	return prev
}

// Connector is the part of the client the binder drives.
type Connector interface {
	Connect()
	Disconnect()
}

// Binder ties a connector's lifecycle to a session. Connect is idempotent,
// so repeated updates never open a second channel.
//
// Connector calls run in order outside the binder's lock, so connection
// hooks may call back into the binder. A call made from inside a hook is
// queued and runs once the outer call returns from the connector.
type Binder struct {
	mu      sync.Mutex
	session *Session
	conn    Connector
	closed  bool
	pending []func()
	running bool
}

func NewBinder(session *Session, conn Connector) *Binder {
	return &Binder{session: session, conn: conn}
}

// SetCredential records a new credential (nil on logout) and connects or
// disconnects on the present/absent edges.
func (b *Binder) SetCredential(cred *Credential) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	prev := b.session.swap(cred)
	wasValid, isValid := prev.valid(), cred.valid()

	switch {
	case !wasValid && isValid:
		b.pending = append(b.pending, b.conn.Connect)
	case wasValid && !isValid:
		b.pending = append(b.pending, b.conn.Disconnect)
	case wasValid && isValid && prev.UserID != cred.UserID:
		b.pending = append(b.pending, b.conn.Disconnect, b.conn.Connect)
	case wasValid && isValid && prev.Token.AccessToken != cred.Token.AccessToken:
		// no-op while a channel is up; retries after a rejected token
		b.pending = append(b.pending, b.conn.Connect)
	}
	b.drainLocked()
}

// Close is called when the host goes away. It disconnects even if the
// session is still valid and ignores later updates.
func (b *Binder) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.pending = append(b.pending, b.conn.Disconnect)
	b.drainLocked()
}

// drainLocked runs queued connector calls and releases b.mu.
func (b *Binder) drainLocked() {
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	for len(b.pending) > 0 {
		fn := b.pending[0]
		b.pending = b.pending[1:]
		b.mu.Unlock()
		fn()
		b.mu.Lock()
	}
	b.running = false
	b.mu.Unlock()
}
