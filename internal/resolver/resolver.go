// file: internal/resolver/resolver.go

// Package resolver picks the trust source for a run and builds the matching
// token factory. It reads only what it is given and never calls GitHub.
package resolver

import (
	"strings"

	"install-credentials/internal/secrets"
	"install-credentials/internal/token"
)

// Config carries the credential inputs of one invocation
type Config struct {
	// Token is a pre-issued GitHub token. When set it wins over everything else.
	Token string

	// InstallationID scopes minted tokens; required when Token is empty
	InstallationID int64

	// Secrets is the App secrets blob (App ID + private key)
	Secrets string
}

// Resolve returns a fixed factory when a token is supplied, otherwise an
// exchanging factory built from the decoded secrets blob. Every failure is a
// *token.ConfigurationError raised before any network call.
func Resolve(cfg Config, exchanger token.Exchanger, opts ...token.Option) (token.Factory, error) {
	if tok := strings.TrimSpace(cfg.Token); tok != "" {
		return token.NewFixedFactory(tok)
	}

	if strings.TrimSpace(cfg.Secrets) == "" {
		return nil, &token.ConfigurationError{Err: token.ErrNoCredentialSource}
	}

	appSecrets, err := secrets.Decode(cfg.Secrets)
	if err != nil {
		return nil, &token.ConfigurationError{Field: "secrets", Err: err}
	}

	return token.NewExchangingFactory(token.Identity{
		InstallationID: cfg.InstallationID,
		AppID:          appSecrets.AppID,
		PrivateKey:     appSecrets.PrivateKey,
	}, exchanger, opts...)
}
