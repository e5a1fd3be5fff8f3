// Package auth supplies the bearer token used for remote calls.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNoToken is returned when no credential is available
var ErrNoToken = errors.New("no access token available")

// TokenProvider returns the current bearer token
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Available reports whether p currently yields a non-empty token
func Available(ctx context.Context, p TokenProvider) (string, error) {
	if p == nil {
		return "", ErrNoToken
	}

	token, err := p.Token(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(token) == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// StaticProvider always returns the same token
type StaticProvider string

func (s StaticProvider) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// TokenSourceProvider adapts an oauth2.TokenSource
type TokenSourceProvider struct {
	src oauth2.TokenSource
}

// NewTokenSourceProvider wraps src; the source is made reusable so a valid
// token is not refetched on every call.
func NewTokenSourceProvider(src oauth2.TokenSource) *TokenSourceProvider {
	return &TokenSourceProvider{src: oauth2.ReuseTokenSource(nil, src)}
}

// NewClientCredentialsProvider fetches tokens with the OAuth2 client credentials grant
func NewClientCredentialsProvider(ctx context.Context, clientID, clientSecret, tokenURL string, scopes []string) *TokenSourceProvider {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}
	return &TokenSourceProvider{src: cfg.TokenSource(ctx)}
}

func (p *TokenSourceProvider) Token(context.Context) (string, error) {
	tok, err := p.src.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoToken, err)
	}
	if !tok.Valid() {
		return "", ErrNoToken
	}
	return tok.AccessToken, nil
}

// Chain tries each provider in order and returns the first token found.
// Errors other than ErrNoToken stop the chain.
type Chain []TokenProvider

func (c Chain) Token(ctx context.Context) (string, error) {
	for _, p := range c {
		if p == nil {
			continue
		}
		token, err := p.Token(ctx)
		if errors.Is(err, ErrNoToken) {
			continue
		}
		if err != nil {
			return "", err
		}
		if token != "" {
			return token, nil
		}
	}
	return "", ErrNoToken
}
