package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignedURLSigner creates and validates signed download tokens for stored objects.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate returns a token referencing key that expires after the signer TTL.
func (s *SignedURLSigner) Generate(key string) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, fmt.Errorf("object key required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl)
	encodedKey := base64.RawURLEncoding.EncodeToString([]byte(key))
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	token := strings.Join([]string{ts, encodedKey, s.sign(ts, encodedKey)}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the object key it references.
func (s *SignedURLSigner) Parse(token string) (string, time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", time.Time{}, fmt.Errorf("invalid token format")
	}
	ts, encodedKey, signature := parts[0], parts[1], parts[2]

	if !hmac.Equal([]byte(s.sign(ts, encodedKey)), []byte(signature)) {
		return "", time.Time{}, fmt.Errorf("invalid token signature")
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid timestamp")
	}
	expiresAt := time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return "", time.Time{}, fmt.Errorf("token expired")
	}
	rawKey, err := base64.RawURLEncoding.DecodeString(encodedKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("decode key: %w", err)
	}
	return string(rawKey), expiresAt, nil
}

func (s *SignedURLSigner) sign(ts, encodedKey string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(ts + "|" + encodedKey))
	return hex.EncodeToString(mac.Sum(nil))
}
