package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Encryptor defines an interface for encrypting/decrypting small payloads
// such as state cookies.
type Encryptor interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
}

// AESGCMEncryptor implements Encryptor using AES-256-GCM.
type AESGCMEncryptor struct {
	key []byte // 32 bytes
}

const (
	// Versioned prefix to allow future key/algorithm rotations without breaking
	// payloads already in flight.
	cipherPrefixV1 = "v1:"
)

// NewAESGCMEncryptor constructs a new AESGCMEncryptor. Key must be 32 bytes (AES-256).
func NewAESGCMEncryptor(key []byte) (*AESGCMEncryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("aes-gcm key must be 32 bytes, got %d", len(key))
	}
	return &AESGCMEncryptor{key: append([]byte(nil), key...)}, nil
}

// Encrypt encrypts plaintext with a random nonce and returns a versioned base64 string.
func (e *AESGCMEncryptor) Encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, readErr := io.ReadFull(rand.Reader, nonce); readErr != nil {
		return "", readErr
	}
	ct := gcm.Seal(nil, nonce, plaintext, nil)
	// Store nonce||ciphertext
	buf := make([]byte, 0, len(nonce)+len(ct))
	buf = append(buf, nonce...)
	buf = append(buf, ct...)
	return cipherPrefixV1 + base64.StdEncoding.EncodeToString(buf), nil
}

// Decrypt decrypts a versioned base64 string created by Encrypt.
func (e *AESGCMEncryptor) Decrypt(ciphertext string) ([]byte, error) {
	if !strings.HasPrefix(ciphertext, cipherPrefixV1) {
		var prefix string
		if len(ciphertext) > 10 {
			prefix = ciphertext[:10]
		} else {
			prefix = ciphertext
		}
		return nil, fmt.Errorf("unknown ciphertext version (prefix: %s)", prefix)
	}
	b64 := ciphertext[len(cipherPrefixV1):]
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ct := data[:nonceSize], data[nonceSize:]
	pt, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, err
	}
	return pt, nil
}

// KeyRing wraps multiple encryptors to support key rotation: the first key
// encrypts new payloads, every key is tried on decrypt.
type KeyRing struct {
	encryptors []*AESGCMEncryptor
}

// NewKeyRing builds a KeyRing from one or more 32-byte keys.
func NewKeyRing(keys [][]byte) (*KeyRing, error) {
	if len(keys) == 0 {
		return nil, errors.New("key ring requires at least one key")
	}
	encs := make([]*AESGCMEncryptor, 0, len(keys))
	for i, key := range keys {
		enc, err := NewAESGCMEncryptor(key)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		encs = append(encs, enc)
	}
	return &KeyRing{encryptors: encs}, nil
}

// Encrypt always uses the first (current) key.
func (r *KeyRing) Encrypt(plaintext []byte) (string, error) {
	return r.encryptors[0].Encrypt(plaintext)
}

// Decrypt tries each key in order. Payloads sealed under a rotated-out key
// still open as long as the key stays on the ring.
func (r *KeyRing) Decrypt(ciphertext string) ([]byte, error) {
	var lastErr error
	for _, enc := range r.encryptors {
		pt, err := enc.Decrypt(ciphertext)
		if err == nil {
			return pt, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
