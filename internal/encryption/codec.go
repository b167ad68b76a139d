// Package encryption protects secret values at rest with AES-256-GCM.
//
// Ciphertexts are rendered as "iv:authTag:data", each segment standard
// base64. The master key is a 64-character hex string looked up on every
// call, so a key swap takes effect on the next process start without any
// cached state.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// KeyEnvVar is the environment variable holding the hex-encoded master key.
const KeyEnvVar = "KAGI_ENCRYPTION_KEY"

const (
	keyBytes   = 32
	nonceBytes = 12
	tagBytes   = 16
	separator  = ":"
)

var (
	ErrConfiguration       = errors.New("encryption is misconfigured")
	ErrMalformedCiphertext = errors.New(`invalid ciphertext format, expected "iv:authTag:data"`)
	ErrTampered            = errors.New("ciphertext failed authentication")
)

var b64 = base64.StdEncoding.Strict()

// KeySource supplies the hex-encoded master key.
type KeySource interface {
	// LookupKey returns the hex key and whether it is set.
	LookupKey() (string, bool)
	// Name identifies the source in configuration errors.
	Name() string
}

// EnvKey reads the master key from the named environment variable.
type EnvKey string

func (e EnvKey) LookupKey() (string, bool) { return os.LookupEnv(string(e)) }
func (e EnvKey) Name() string              { return string(e) }

// StaticKey is a fixed hex key, used by tools and tests.
type StaticKey string

func (k StaticKey) LookupKey() (string, bool) { return string(k), true }
func (k StaticKey) Name() string              { return "static key" }

// Codec encrypts and decrypts secret payloads. It is safe for concurrent use.
type Codec struct {
	keys KeySource
}

// NewCodec returns a Codec reading its key from src.
func NewCodec(src KeySource) *Codec {
	return &Codec{keys: src}
}

// NewEnvCodec returns a Codec reading KAGI_ENCRYPTION_KEY.
func NewEnvCodec() *Codec {
	return NewCodec(EnvKey(KeyEnvVar))
}

// GenerateKey returns a fresh random master key in hex.
func GenerateKey() (string, error) {
	k := make([]byte, keyBytes)
	if _, err := rand.Read(k); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(k), nil
}

func (c *Codec) masterKey() ([]byte, error) {
	raw, ok := c.keys.LookupKey()
	if !ok || raw == "" {
		if _, isEnv := c.keys.(EnvKey); isEnv {
			return nil, fmt.Errorf("%w: %s environment variable is not set", ErrConfiguration, c.keys.Name())
		}
		return nil, fmt.Errorf("%w: %s is not set", ErrConfiguration, c.keys.Name())
	}
	key, err := hex.DecodeString(raw)
	if err != nil || len(key) != keyBytes {
		return nil, fmt.Errorf("%w: %s must be exactly %d hex characters (%d bytes)",
			ErrConfiguration, c.keys.Name(), keyBytes*2, keyBytes)
	}
	return key, nil
}

func (c *Codec) aead() (cipher.AEAD, error) {
	key, err := c.masterKey()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	data, tag := sealed[:len(sealed)-tagBytes], sealed[len(sealed)-tagBytes:]

	return strings.Join([]string{
		b64.EncodeToString(nonce),
		b64.EncodeToString(tag),
		b64.EncodeToString(data),
	}, separator), nil
}

// Decrypt opens a ciphertext produced by Encrypt. A ciphertext that was
// altered, truncated or sealed under another key yields ErrTampered.
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	gcm, err := c.aead()
	if err != nil {
		return "", err
	}

	parts := strings.Split(ciphertext, separator)
	if len(parts) != 3 {
		return "", ErrMalformedCiphertext
	}

	nonce, err := b64.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceBytes {
		return "", fmt.Errorf("%w: bad iv segment", ErrMalformedCiphertext)
	}
	tag, err := b64.DecodeString(parts[1])
	if err != nil || len(tag) != tagBytes {
		return "", fmt.Errorf("%w: bad authTag segment", ErrMalformedCiphertext)
	}
	data, err := b64.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: data segment is corrupted", ErrTampered)
	}

	plaintext, err := gcm.Open(nil, nonce, append(data, tag...), nil)
	if err != nil {
		return "", ErrTampered
	}
	return string(plaintext), nil
}

// EncryptJSON marshals v and encrypts the result.
func (c *Codec) EncryptJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal secret: %w", err)
	}
	return c.Encrypt(string(b))
}

// DecryptJSON decrypts ciphertext and unmarshals it into v.
func (c *Codec) DecryptJSON(ciphertext string, v any) error {
	plaintext, err := c.Decrypt(ciphertext)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(plaintext), v); err != nil {
		return fmt.Errorf("unmarshal secret: %w", err)
	}
	return nil
}
