// file: internal/token/token.go

// Package token produces GitHub access tokens on demand.
//
// A Factory is either fixed (wraps a token supplied from outside, never
// expires) or exchanging (signs an App JWT and trades it for a short-lived
// installation token, caching the result until it nears expiry).
package token

import (
	"context"
	"fmt"
	"time"
)

// Credential is a bearer token and the time it stops being valid.
// A zero ExpiresAt means the expiry is not tracked.
type Credential struct {
	Value     string
	ExpiresAt time.Time
}

// Expires reports whether the credential carries a tracked expiry
func (c Credential) Expires() bool {
	return !c.ExpiresAt.IsZero()
}

// String redacts the token value so credentials are safe to log.
func (c Credential) String() string {
	if !c.Expires() {
		return "Credential{Value: [redacted]}"
	}
	return fmt.Sprintf("Credential{Value: [redacted], ExpiresAt: %s}", c.ExpiresAt.Format(time.RFC3339))
}

// Factory yields a currently valid access token. Implementations are safe
// for concurrent use.
type Factory interface {
	AccessToken(ctx context.Context) (Credential, error)
}

// Source labels used in logs and metrics
const (
	SourceFixed   = "fixed"
	SourceApp     = "app"
	SourceUnknown = "unknown"
)

// SourceOf names the trust source behind a factory
func SourceOf(f Factory) string {
	switch f.(type) {
	case *FixedFactory:
		return SourceFixed
	case *ExchangingFactory:
		return SourceApp
	default:
		return SourceUnknown
	}
}
