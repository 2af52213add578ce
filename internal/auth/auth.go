// Package auth provides bearer-token credentials for the game server.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// Errors
var (
	ErrNoToken        = errors.New("no access token")
	ErrMalformedToken = errors.New("malformed access token")
)

// TokenSource supplies the current access token. Refreshing expired tokens is
// the source's concern, not the caller's.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Credentials holds a static access token and the identity it was issued to.
type Credentials struct {
	AccessToken string // JWT access token
	Subject     string // User ID from the token's "sub" claim
}

// LoadCredentials builds credentials from an inline token or a token file.
// The inline token wins when both are set.
func LoadCredentials(token, tokenPath string) (*Credentials, error) {
	if token == "" && tokenPath != "" {
		var err error
		token, err = LoadTokenFile(tokenPath)
		if err != nil {
			return nil, fmt.Errorf("load token file: %w", err)
		}
	}
	if token == "" {
		return nil, ErrNoToken
	}

	sub, err := SubjectFromToken(token)
	if err != nil {
		return nil, err
	}

	return &Credentials{
		AccessToken: token,
		Subject:     sub,
	}, nil
}

// LoadTokenFile reads a token from a file, trimming surrounding whitespace.
func LoadTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Token implements TokenSource.
func (c *Credentials) Token(ctx context.Context) (string, error) {
	if c == nil || c.AccessToken == "" {
		return "", ErrNoToken
	}
	return c.AccessToken, nil
}

// SubjectFromToken returns the "sub" claim of a JWT. The signature is not
// verified; the server does that. The claim only identifies the local player.
func SubjectFromToken(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return "", fmt.Errorf("%w: decode payload: %v", ErrMalformedToken, err)
	}

	var claims struct {
		Sub string `json:"sub"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("%w: parse claims: %v", ErrMalformedToken, err)
	}
	if claims.Sub == "" {
		return "", fmt.Errorf("%w: missing sub claim", ErrMalformedToken)
	}

	return claims.Sub, nil
}

// SetHeader sets the Authorization header from src. A nil source is a no-op.
func SetHeader(ctx context.Context, header http.Header, src TokenSource) error {
	if src == nil {
		return nil
	}
	token, err := src.Token(ctx)
	if err != nil {
		return err
	}
	header.Set("Authorization", "Bearer "+token)
	return nil
}
