package shared

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Credential is the bearer token binding the live session and every command to an authenticated identity.
//
// It wraps an [oauth2.Token] so the same value can authorize both the event channel and REST calls.
type Credential struct {
	token *oauth2.Token
}

// NewCredential creates a bearer [Credential]. A zero expiry means the token never expires locally.
func NewCredential(accessToken string, expiry time.Time) Credential {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return Credential{}
	}
	return Credential{token: &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer", Expiry: expiry}}
}

// Token returns the raw access token, or "" when absent.
func (c Credential) Token() string {
	if c.token == nil {
		return ""
	}
	return c.token.AccessToken
}

// Valid reports whether the credential is present and not expired.
func (c Credential) Valid() bool {
	return c.token != nil && c.token.Valid()
}

// Check returns an [ErrAuth] wrapped error describing why the credential cannot be used.
func (c Credential) Check() error {
	switch {
	case c.token == nil:
		return fmt.Errorf("%w: missing credential", ErrAuth)
	case !c.token.Valid():
		return fmt.Errorf("%w: credential expired", ErrAuth)
	default:
		return nil
	}
}

// TokenSource exposes the credential as a static [oauth2.TokenSource].
func (c Credential) TokenSource() oauth2.TokenSource {
	if c.token == nil {
		return oauth2.StaticTokenSource(&oauth2.Token{})
	}
	return oauth2.StaticTokenSource(c.token)
}

type credentialKey struct{}

// WithCredential returns a copy of ctx carrying the credential.
func WithCredential(ctx context.Context, c Credential) context.Context {
	return context.WithValue(ctx, credentialKey{}, c)
}

// CredentialFrom extracts the credential bound by [WithCredential], if any.
func CredentialFrom(ctx context.Context) (Credential, bool) {
	c, ok := ctx.Value(credentialKey{}).(Credential)
	return c, ok
}
