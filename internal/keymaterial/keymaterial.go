package keymaterial

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	KeyIDPrefix  = "ak_"
	SecretPrefix = "sk_"

	keyIDLength  = 24
	secretLength = 48
)

var ErrEmptySecret = errors.New("secret must not be empty")

// Manager generates API key material and computes the one-way digest stored
// in place of the secret. Digests are keyed with a server-side HMAC secret so
// a leaked database alone is not enough to forge credentials.
type Manager struct {
	hmacKey []byte
}

func NewManager(hmacSecret string) (*Manager, error) {
	if hmacSecret == "" {
		return nil, errors.New("hmac secret is required")
	}
	return &Manager{hmacKey: []byte(hmacSecret)}, nil
}

func generateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func generateRandomString(length int) (string, error) {
	var sb strings.Builder
	for sb.Len() < length {
		b, err := generateRandomBytes(length)
		if err != nil {
			return "", err
		}
		str := base64.URLEncoding.EncodeToString(b)
		str = strings.ReplaceAll(str, "-", "")
		str = strings.ReplaceAll(str, "_", "")
		sb.WriteString(str)
	}
	return sb.String()[:length], nil
}

// GenerateKeyPair produces a public key id, a secret shown to the caller
// exactly once, and the digest to store in place of the secret.
func (m *Manager) GenerateKeyPair() (keyID, secret, digest string, err error) {
	idPart, err := generateRandomString(keyIDLength)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate key id: %w", err)
	}

	secretPart, err := generateRandomString(secretLength)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate secret: %w", err)
	}

	keyID = KeyIDPrefix + idPart
	secret = SecretPrefix + secretPart

	digest, err = m.Hash(secret)
	if err != nil {
		return "", "", "", err
	}

	return keyID, secret, digest, nil
}

// Hash computes the deterministic HMAC-SHA256 digest of a secret.
func (m *Manager) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	mac := hmac.New(sha256.New, m.hmacKey)
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the digest and compares in constant time. Any malformed
// input yields false, never an error.
func (m *Manager) Verify(secret, digest string) bool {
	if secret == "" || digest == "" {
		return false
	}
	computed, err := m.Hash(secret)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}

// SplitPresented separates a presented credential of the form
// "ak_<id>.sk_<secret>" into its public and private segments. The key id
// segment indexes the stored record; only the secret segment is digested.
func SplitPresented(presented string) (keyID, secret string, ok bool) {
	keyID, secret, found := strings.Cut(presented, ".")
	if !found {
		return "", "", false
	}
	if !strings.HasPrefix(keyID, KeyIDPrefix) || !strings.HasPrefix(secret, SecretPrefix) {
		return "", "", false
	}
	if len(keyID) < len(KeyIDPrefix)+keyIDLength || len(secret) < len(SecretPrefix)+secretLength {
		return "", "", false
	}
	return keyID, secret, true
}
