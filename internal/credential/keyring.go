package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/nhle/trackrelay/internal/model"
)

const serviceName = "trackrelay"

// Keys under which secrets are stored.
const (
	KeyTrackerToken    = "tracker-token"
	KeyTrackerPassword = "tracker-password"
	KeyChatToken       = "chat-token"
)

// Vault reads and writes secrets in a keyring.
type Vault struct {
	ring keyring.Keyring
}

// NewVault wraps an already opened keyring.
func NewVault(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

// Open returns a Vault backed by the system keyring.
func Open() (*Vault, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/trackrelay/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("trackrelay-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewVault(ring), nil
}

// Get retrieves a credential value by key. A missing key yields "" and no error.
func (v *Vault) Get(key string) (string, error) {
	item, err := v.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (v *Vault) Set(key string, value string) error {
	err := v.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key.
func (v *Vault) Delete(key string) error {
	if err := v.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// Resolve fills secrets missing from cfg with values from the vault.
// Secrets already present in the config or environment win.
func (v *Vault) Resolve(cfg *model.AppConfig) error {
	var err error
	switch {
	case cfg.Tracker.Login != "":
		if cfg.Tracker.Password == "" {
			if cfg.Tracker.Password, err = v.Get(KeyTrackerPassword); err != nil {
				return err
			}
		}
	case cfg.Tracker.Token == "":
		if cfg.Tracker.Token, err = v.Get(KeyTrackerToken); err != nil {
			return err
		}
	}

	if cfg.Chat.Token == "" {
		if cfg.Chat.Token, err = v.Get(KeyChatToken); err != nil {
			return err
		}
	}
	return nil
}
