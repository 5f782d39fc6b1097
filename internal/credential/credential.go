// Package credential persists the signed-in user between CLI runs.
package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	go_json "github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/garrettladley/rally/internal/notify"
)

var ErrNotFound = errors.New("no stored credential")

type Store interface {
	Load() (*notify.Credential, error)
	Save(cred *notify.Credential) error
	// Remove signs out. A missing credential is not an error.
	Remove() error
}

type record struct {
	UserID      string    `json:"userId"`
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType,omitempty"`
	Expiry      time.Time `json:"expiry"`
}

func encode(cred *notify.Credential) ([]byte, error) {
	if cred == nil || cred.Token == nil {
		return nil, errors.New("credential has no token")
	}
	raw, err := go_json.Marshal(record{
		UserID:      cred.UserID,
		AccessToken: cred.Token.AccessToken,
		TokenType:   cred.Token.TokenType,
		Expiry:      cred.Token.Expiry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential: %w", err)
	}
	return raw, nil
}

func decode(raw []byte) (*notify.Credential, error) {
	var r record
	if err := go_json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("failed to decode credential: %w", err)
	}
	if r.UserID == "" || r.AccessToken == "" {
		return nil, ErrNotFound
	}
	return &notify.Credential{
		UserID: r.UserID,
		Token: &oauth2.Token{
			AccessToken: r.AccessToken,
			TokenType:   r.TokenType,
			Expiry:      r.Expiry,
		},
	}, nil
}

// FileStore keeps the credential as JSON in a single owner-only file.
type FileStore struct {
	Path string
}

var _ Store = FileStore{}

func (f FileStore) Load() (*notify.Credential, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}
	return decode(raw)
}

func (f FileStore) Save(cred *notify.Credential) error {
	raw, err := encode(cred)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".credential-*")
	if err != nil {
		return fmt.Errorf("failed to create credential file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write credential: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set credential permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write credential: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

func (f FileStore) Remove() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credential: %w", err)
	}
	return nil
}
