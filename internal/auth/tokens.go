package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/helmsman-hq/helmsman/internal/shared"
)

const tokenKeyPrefix = "auth_token_"

// TokenManager issues and resolves opaque bearer tokens. The raw token is
// handed to the client once; Redis stores the principal under an HMAC of the
// token, so a dump of the store leaks no usable credentials.
type TokenManager struct {
	client *redis.Client
	secret []byte
	ttl    time.Duration
}

// NewTokenManager constructs a TokenManager. ttl bounds how long an issued
// token stays valid without re-login.
func NewTokenManager(client *redis.Client, secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{client: client, secret: []byte(secret), ttl: ttl}
}

// Issue mints a fresh token for the principal.
func (m *TokenManager) Issue(ctx context.Context, principal shared.Principal) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	token := hex.EncodeToString(raw)

	payload, err := json.Marshal(principal)
	if err != nil {
		return "", err
	}
	if err := m.client.Set(ctx, m.key(token), payload, m.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve maps a bearer token back to its principal.
func (m *TokenManager) Resolve(ctx context.Context, token string) (*shared.Principal, error) {
	if token == "" {
		return nil, shared.ErrUnauthorized
	}
	payload, err := m.client.Get(ctx, m.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shared.ErrUnauthorized
		}
		return nil, err
	}
	var principal shared.Principal
	if err := json.Unmarshal(payload, &principal); err != nil {
		return nil, err
	}
	return &principal, nil
}

// Revoke drops a token immediately. Resolving it afterwards fails with
// ErrUnauthorized.
func (m *TokenManager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.client.Del(ctx, m.key(token)).Err()
}

func (m *TokenManager) key(token string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(token))
	return tokenKeyPrefix + hex.EncodeToString(mac.Sum(nil))
}
