package credential

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"

	"github.com/garrettladley/rally/internal/notify"
)

const (
	serviceName = "rally"
	itemKey     = "session"
)

// OpenKeyring opens the platform keyring, falling back to an encrypted
// file under dir when no system keyring is available.
func OpenKeyring(dir string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(dir, "keyring"),
		FilePasswordFunc:         keyring.FixedStringPrompt("rally-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return ring, nil
}

type KeyringStore struct {
	ring keyring.Keyring
}

var _ Store = (*KeyringStore)(nil)

func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

func (k *KeyringStore) Load() (*notify.Credential, error) {
	item, err := k.ring.Get(itemKey)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}
	return decode(item.Data)
}

func (k *KeyringStore) Save(cred *notify.Credential) error {
	raw, err := encode(cred)
	if err != nil {
		return err
	}
	err = k.ring.Set(keyring.Item{
		Key:         itemKey,
		Data:        raw,
		Label:       "rally session",
		Description: "rally notification session for " + cred.UserID,
	})
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

func (k *KeyringStore) Remove() error {
	if err := k.ring.Remove(itemKey); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to remove credential: %w", err)
	}
	return nil
}
