package protocol

import (
	"errors"
	"fmt"
	"time"

	go_json "github.com/goccy/go-json"
)

type Type string

const (
	TypeAuthenticate       Type = "authenticate"
	TypeAuthenticated      Type = "authenticated"
	TypeAuthError          Type = "auth_error"
	TypeNotification       Type = "notification"
	TypeInvitationsUpdated Type = "invitations_updated"
	TypeMarkRead           Type = "mark_notification_read"
	TypePing               Type = "ping"
	TypePong               Type = "pong"
)

var ErrMissingType = errors.New("envelope has no type")

// Envelope is the wire format of every frame on the channel.
type Envelope struct {
	Type    Type               `json:"type"`
	Payload go_json.RawMessage `json:"payload,omitempty"`
}

type Authenticate struct {
	Token string `json:"token"`
}

type Authenticated struct {
	UserID string `json:"userId"`
}

type AuthError struct {
	Message string `json:"message"`
}

type Kind string

const (
	KindMatchInvitation Kind = "match_invitation"
	KindMatchUpdate     Kind = "match_update"
	KindTeamInvitation  Kind = "team_invitation"
	KindTeamUpdate      Kind = "team_update"
	KindVenueBooking    Kind = "venue_booking"
	KindFriendRequest   Kind = "friend_request"
	KindPostLike        Kind = "post_like"
	KindPostComment     Kind = "post_comment"
	KindSystem          Kind = "system"
)

// IsInvitation reports whether notifications of this kind change the
// invitation lists a client renders.
func (k Kind) IsInvitation() bool {
	return k == KindMatchInvitation || k == KindTeamInvitation
}

// Known reports whether k is one of the kinds above. Clients accept
// unknown kinds; only publishers are held to the list.
func (k Kind) Known() bool {
	switch k {
	case KindMatchInvitation, KindMatchUpdate, KindTeamInvitation, KindTeamUpdate,
		KindVenueBooking, KindFriendRequest, KindPostLike, KindPostComment, KindSystem:
		return true
	}
	return false
}

type Notification struct {
	ID        string         `json:"id"`
	Type      Kind           `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Read      bool           `json:"read"`
}

// Encode wraps payload in an envelope of the given type. A nil payload
// is sent as an empty object.
func Encode(t Type, payload any) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	raw, err := go_json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	data, err := go_json.Marshal(Envelope{Type: t, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", t, err)
	}
	return data, nil
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := go_json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

// Into unmarshals the envelope payload into v.
func (e Envelope) Into(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := go_json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", e.Type, err)
	}
	return nil
}

func AuthenticateFrame(token string) ([]byte, error) {
	return Encode(TypeAuthenticate, Authenticate{Token: token})
}

func AuthenticatedFrame(userID string) ([]byte, error) {
	return Encode(TypeAuthenticated, Authenticated{UserID: userID})
}

func AuthErrorFrame(message string) ([]byte, error) {
	return Encode(TypeAuthError, AuthError{Message: message})
}

func NotificationFrame(n Notification) ([]byte, error) {
	return Encode(TypeNotification, n)
}

func MarkReadFrame(id string) ([]byte, error) {
	return Encode(TypeMarkRead, id)
}
