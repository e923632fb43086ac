// Package secrets stores provider API keys sealed at rest.
package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// Vault holds provider API keys in memory and seals them to disk with
// XChaCha20-Poly1305 under a 32-byte master key.
type Vault struct {
	mu     sync.RWMutex
	path   string
	master []byte
	keys   map[string]string // provider name -> API key
}

// Open loads the sealed key file, creating an empty vault if it does not
// exist. masterHex is the hex-encoded 32-byte sealing key.
func Open(path, masterHex string) (*Vault, error) {
	master, err := hex.DecodeString(masterHex)
	if err != nil || len(master) != chacha20poly1305.KeySize {
		return nil, errors.New("master key must be 64 hex chars (32 bytes)")
	}

	v := &Vault{
		path:   path,
		master: master,
		keys:   make(map[string]string),
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from config
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return v, nil
		}
		return nil, fmt.Errorf("read vault: %w", err)
	}
	if err := v.unseal(data); err != nil {
		return nil, err
	}
	return v, nil
}

// Get returns the API key for a provider, or an empty string.
func (v *Vault) Get(provider string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.keys[provider]
}

// Set stores an API key for a provider and reseals the vault to disk.
func (v *Vault) Set(provider, key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.keys[provider] = key
	return v.seal()
}

// Providers lists the provider names with stored keys.
func (v *Vault) Providers() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	names := make([]string, 0, len(v.keys))
	for name := range v.keys {
		names = append(names, name)
	}
	return names
}

func (v *Vault) seal() error {
	plain, err := json.Marshal(v.keys)
	if err != nil {
		return fmt.Errorf("marshal keys: %w", err)
	}

	aead, err := chacha20poly1305.NewX(v.master)
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plain, nil)

	if err := os.MkdirAll(filepath.Dir(v.path), 0o750); err != nil {
		return fmt.Errorf("vault dir: %w", err)
	}
	if err := os.WriteFile(v.path, sealed, 0o600); err != nil {
		return fmt.Errorf("write vault: %w", err)
	}
	return nil
}

func (v *Vault) unseal(sealed []byte) error {
	aead, err := chacha20poly1305.NewX(v.master)
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return errors.New("vault file too short")
	}
	nonce, box := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, box, nil)
	if err != nil {
		return fmt.Errorf("unseal vault: %w", err)
	}
	if err := json.Unmarshal(plain, &v.keys); err != nil {
		return fmt.Errorf("decode vault: %w", err)
	}
	return nil
}

// NewMasterKey generates a fresh hex-encoded sealing key.
func NewMasterKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate master key: %w", err)
	}
	return hex.EncodeToString(key), nil
}
