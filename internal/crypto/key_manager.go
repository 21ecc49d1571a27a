package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrMasterKeyNotSet  = errors.New("master key not set")
	ErrInvalidMasterKey = errors.New("invalid master key: must be base64 of 32 bytes")
)

const credentialPurpose = "provider-credentials/v1"

// KeyManager derives per-user credential keys from a single master key.
type KeyManager struct {
	masterKey []byte
	// user_id -> derived key
	userKeys map[string][]byte
	mu       sync.RWMutex
}

// NewKeyManager parses a base64 master key.
func NewKeyManager(masterKeyBase64 string) (*KeyManager, error) {
	if masterKeyBase64 == "" {
		return nil, ErrMasterKeyNotSet
	}
	masterKey, err := base64.StdEncoding.DecodeString(masterKeyBase64)
	if err != nil || len(masterKey) != 32 {
		return nil, ErrInvalidMasterKey
	}
	return &KeyManager{
		masterKey: masterKey,
		userKeys:  make(map[string][]byte),
	}, nil
}

func (km *KeyManager) userKey(userID string) ([]byte, error) {
	km.mu.RLock()
	key, ok := km.userKeys[userID]
	km.mu.RUnlock()
	if ok {
		return key, nil
	}

	key = make([]byte, 32)
	r := hkdf.New(sha256.New, km.masterKey, []byte(userID), []byte(credentialPurpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive credential key: %w", err)
	}

	km.mu.Lock()
	km.userKeys[userID] = key
	km.mu.Unlock()
	return key, nil
}

// SealCredential encrypts apiKey for (userID, provider). The result only opens
// for the same pair.
func (km *KeyManager) SealCredential(userID, provider, apiKey string) (string, error) {
	key, err := km.userKey(userID)
	if err != nil {
		return "", err
	}
	return Encrypt(apiKey, key, []byte(provider))
}

// OpenCredential decrypts a value produced by SealCredential.
func (km *KeyManager) OpenCredential(userID, provider, sealed string) (string, error) {
	key, err := km.userKey(userID)
	if err != nil {
		return "", err
	}
	return Decrypt(sealed, key, []byte(provider))
}
