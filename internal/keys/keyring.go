package keys

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// Keyring seals small secrets (payout account numbers) at rest. Every
// ciphertext is stamped with the id of the key that sealed it, so old
// records stay readable after the active key rotates; new writes always use
// the active key.
type Keyring struct {
	keys   map[string][]byte
	active string
}

var ErrUnknownKey = errors.New("keyring: unknown key id")

// FromEnv builds a keyring from ACCOUNT_KEYS ("id:base64key,...") and
// ACCOUNT_ACTIVE_KEY. Keys are 32 bytes, base64 standard encoding.
func FromEnv() (*Keyring, error) {
	raw := os.Getenv("ACCOUNT_KEYS")
	active := os.Getenv("ACCOUNT_ACTIVE_KEY")
	if raw == "" || active == "" {
		return nil, fmt.Errorf("keyring not configured: set ACCOUNT_KEYS and ACCOUNT_ACTIVE_KEY")
	}

	kr := &Keyring{keys: make(map[string][]byte), active: active}
	for _, entry := range strings.Split(raw, ",") {
		id, b64, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok {
			return nil, fmt.Errorf("keyring: malformed entry %q", entry)
		}
		key, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("keyring: key %s: %w", id, err)
		}
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("keyring: key %s: want %d bytes, got %d", id, chacha20poly1305.KeySize, len(key))
		}
		kr.keys[id] = key
	}
	if _, ok := kr.keys[active]; !ok {
		return nil, fmt.Errorf("keyring: active key %q not in ACCOUNT_KEYS", active)
	}
	return kr, nil
}

// New builds a keyring from in-memory key material.
func New(active string, keys map[string][]byte) (*Keyring, error) {
	if _, ok := keys[active]; !ok {
		return nil, fmt.Errorf("keyring: active key %q missing", active)
	}
	for id, k := range keys {
		if len(k) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("keyring: key %s has wrong size", id)
		}
	}
	return &Keyring{keys: keys, active: active}, nil
}

// Seal encrypts plaintext under the active key and returns the key id and
// the base64 ciphertext (nonce prepended).
func (kr *Keyring) Seal(plaintext string) (keyID, ciphertext string, err error) {
	aead, err := chacha20poly1305.NewX(kr.keys[kr.active])
	if err != nil {
		return "", "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return kr.active, base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a ciphertext produced by Seal under the named key.
func (kr *Keyring) Open(keyID, ciphertext string) (string, error) {
	key, ok := kr.keys[keyID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, keyID)
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", errors.New("keyring: ciphertext too short")
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
