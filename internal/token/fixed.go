// file: internal/token/fixed.go

package token

import "context"

// FixedFactory returns a token supplied from outside. It never touches the
// network and never expires the token.
type FixedFactory struct {
	cred Credential
}

// NewFixedFactory wraps a pre-issued token
func NewFixedFactory(token string) (*FixedFactory, error) {
	if token == "" {
		return nil, &ConfigurationError{Field: "github.token", Err: ErrEmptyToken}
	}
	return &FixedFactory{cred: Credential{Value: token}}, nil
}

// AccessToken returns the wrapped token
func (f *FixedFactory) AccessToken(_ context.Context) (Credential, error) {
	return f.cred, nil
}
