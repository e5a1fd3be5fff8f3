package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/tildaslashalef/reposync/internal/cache"
)

// TokenKey is the cache key holding the stored token
const TokenKey = "auth:token"

const obfuscationMarker = "OBFS:"

// StoreProvider keeps the token in the local cache. The token is obfuscated
// at rest so it does not show up in a casual dump of the database.
type StoreProvider struct {
	store cache.Store
}

// NewStoreProvider creates a provider over store
func NewStoreProvider(store cache.Store) *StoreProvider {
	return &StoreProvider{store: store}
}

func (p *StoreProvider) Token(ctx context.Context) (string, error) {
	raw, ok, err := p.store.Get(ctx, TokenKey)
	if err != nil {
		return "", fmt.Errorf("reading stored token: %w", err)
	}
	if !ok || len(raw) == 0 {
		return "", ErrNoToken
	}
	return deobfuscateToken(string(raw))
}

// SetToken stores token, replacing any previous one
func (p *StoreProvider) SetToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}
	return p.store.Set(ctx, TokenKey, []byte(obfuscateToken(token)))
}

// ClearToken removes the stored token
func (p *StoreProvider) ClearToken(ctx context.Context) error {
	return p.store.Delete(ctx, TokenKey)
}

// Mask shortens a token for display
func Mask(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}

func obfuscateToken(token string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(reverse(token)))
	return obfuscationMarker + encoded
}

func deobfuscateToken(value string) (string, error) {
	if !strings.HasPrefix(value, obfuscationMarker) {
		return value, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, obfuscationMarker))
	if err != nil {
		return "", fmt.Errorf("decoding obfuscated token: %w", err)
	}
	return reverse(string(decoded)), nil
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
