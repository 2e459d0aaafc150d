// file: internal/token/errors.go

package token

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCredentialSource is returned when neither a token nor App secrets were supplied.
	ErrNoCredentialSource = errors.New("no GitHub token or App secrets provided")
	// ErrEmptyToken is returned when a fixed factory is built from an empty token.
	ErrEmptyToken = errors.New("token is empty")
	// ErrMalformedResponse is returned when the provider answers without a usable token.
	ErrMalformedResponse = errors.New("malformed token response")
)

// ConfigurationError reports missing or invalid inputs. It is always raised
// before any network interaction.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// CredentialExchangeError wraps any failure to mint an installation token:
// signing, transport, non-2xx status or a malformed response.
type CredentialExchangeError struct {
	InstallationID int64
	Err            error
}

func (e *CredentialExchangeError) Error() string {
	return fmt.Sprintf("exchange credentials for installation %d: %v", e.InstallationID, e.Err)
}

func (e *CredentialExchangeError) Unwrap() error {
	return e.Err
}
