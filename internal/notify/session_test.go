package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/oauth2"

	"github.com/garrettladley/rally/internal/protocol"
)

type recordingConnector struct {
	calls []string
}

func (r *recordingConnector) Connect()    { r.calls = append(r.calls, "connect") }
func (r *recordingConnector) Disconnect() { r.calls = append(r.calls, "disconnect") }

func TestSessionToken(t *testing.T) {
	t.Parallel()

	s := NewSession()
	if _, err := s.Token(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Token() error = %v, want ErrNoSession", err)
	}

	s.swap(credential("u-1", "tok-1"))
	tok, err := s.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.AccessToken != "tok-1" {
		t.Errorf("AccessToken = %q, want tok-1", tok.AccessToken)
	}

	tok.AccessToken = "mutated"
	again, _ := s.Token()
	if again.AccessToken != "tok-1" {
		t.Error("Token() exposed the stored token")
	}

	s.swap(&Credential{
		UserID: "u-1",
		Token:  &oauth2.Token{AccessToken: "old", Expiry: time.Now().Add(-time.Minute)},
	})
	if _, err := s.Token(); !errors.Is(err, ErrNoSession) {
		t.Errorf("expired Token() error = %v, want ErrNoSession", err)
	}
}

func TestBinderSetCredential(t *testing.T) {
	t.Parallel()

	expired := &Credential{
		UserID: "u-1",
		Token:  &oauth2.Token{AccessToken: "old", Expiry: time.Now().Add(-time.Minute)},
	}

	tests := []struct {
		name  string
		steps []*Credential
		want  []string
	}{
		{
			name:  "login connects",
			steps: []*Credential{credential("u-1", "a")},
			want:  []string{"connect"},
		},
		{
			name:  "logout disconnects",
			steps: []*Credential{credential("u-1", "a"), nil},
			want:  []string{"connect", "disconnect"},
		},
		{
			name:  "repeated identical updates",
			steps: []*Credential{credential("u-1", "a"), credential("u-1", "a"), credential("u-1", "a")},
			want:  []string{"connect"},
		},
		{
			name:  "refreshed token reconnects only if needed",
			steps: []*Credential{credential("u-1", "a"), credential("u-1", "b")},
			want:  []string{"connect", "connect"},
		},
		{
			name:  "user switch",
			steps: []*Credential{credential("u-1", "a"), credential("u-2", "b")},
			want:  []string{"connect", "disconnect", "connect"},
		},
		{
			name:  "expired credential is absent",
			steps: []*Credential{expired, credential("u-1", "a"), expired},
			want:  []string{"connect", "disconnect"},
		},
		{
			name:  "logout while absent",
			steps: []*Credential{nil, nil},
			want:  nil,
		},
		{
			name:  "missing user id is absent",
			steps: []*Credential{{Token: &oauth2.Token{AccessToken: "a"}}},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conn := &recordingConnector{}
			b := NewBinder(NewSession(), conn)
			for _, cred := range tt.steps {
				b.SetCredential(cred)
			}
			if diff := cmp.Diff(tt.want, conn.calls); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBinderClose(t *testing.T) {
	t.Parallel()

	conn := &recordingConnector{}
	session := NewSession()
	b := NewBinder(session, conn)

	b.SetCredential(credential("u-1", "a"))
	b.Close()
	b.SetCredential(credential("u-2", "b"))

	if diff := cmp.Diff([]string{"connect", "disconnect"}, conn.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if got := session.UserID(); got != "u-1" {
		t.Errorf("UserID() = %q, want u-1", got)
	}
}

func TestBinderDrivesClient(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.session.swap(nil)
	b := NewBinder(h.session, h.client)

	b.SetCredential(credential("u-1", "tok-1"))
	conn := h.dial(t)
	conn.push(mustFrame(protocol.AuthenticatedFrame("u-1")))
	eventually(t, h.client.IsConnected)

	b.SetCredential(nil)

	if got := h.client.State(); got != StateIdle {
		t.Errorf("State() = %v, want idle", got)
	}
	if !conn.isClosed() {
		t.Error("channel left open after logout")
	}
}

type reentrantConnector struct {
	recordingConnector
	onDisconnect func()
}

func (r *reentrantConnector) Disconnect() {
	r.recordingConnector.Disconnect()
	if fn := r.onDisconnect; fn != nil {
		r.onDisconnect = nil
		fn()
	}
}

func TestBinderReentrantConnector(t *testing.T) {
	t.Parallel()

	conn := &reentrantConnector{}
	b := NewBinder(NewSession(), conn)
	conn.onDisconnect = func() { b.SetCredential(credential("u-2", "b")) }

	b.SetCredential(credential("u-1", "a"))
	b.SetCredential(nil)

	if diff := cmp.Diff([]string{"connect", "disconnect", "connect"}, conn.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestBinderCalledFromConnectionHook(t *testing.T) {
	t.Parallel()

	var b *Binder
	h := newHarness(t, Config{}, func(hooks *Hooks) {
		hooks.OnConnectionChange = func(connected bool) {
			if !connected {
				b.Close()
			}
		}
	})
	h.session.swap(nil)
	b = NewBinder(h.session, h.client)

	b.SetCredential(credential("u-1", "tok-1"))
	conn := h.dial(t)
	conn.push(mustFrame(protocol.AuthenticatedFrame("u-1")))
	eventually(t, h.client.IsConnected)

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.SetCredential(nil)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SetCredential blocked on a hook calling back into the binder")
	}

	if got := h.client.State(); got != StateIdle {
		t.Errorf("State() = %v, want idle", got)
	}
	b.SetCredential(credential("u-1", "tok-2"))
	if got := h.transport.Dials(); got != 1 {
		t.Errorf("dials after Close = %d, want 1", got)
	}
}
