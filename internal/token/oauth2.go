// file: internal/token/oauth2.go

package token

import (
	"golang.org/x/oauth2"
)

// OAuth2Token converts the credential into a bearer token for an oauth2
// HTTP client. A fixed credential yields a token with no expiry.
func (c Credential) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: c.Value,
		TokenType:   "Bearer",
		Expiry:      c.ExpiresAt,
	}
}

// StaticTokenSource always yields the given credential. Use it when the
// exact value being checked must not change between calls.
func StaticTokenSource(c Credential) oauth2.TokenSource {
	return oauth2.StaticTokenSource(c.OAuth2Token())
}
