// file: internal/token/exchanging.go

package token

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"
)

// DefaultSafetyMargin is how long before expiry a cached token stops being
// handed out. Installation tokens live for an hour.
const DefaultSafetyMargin = 60 * time.Second

// Identity is a GitHub App installation. It is only used to mint tokens and
// is never sent as a bearer credential itself.
type Identity struct {
	InstallationID int64
	AppID          string
	PrivateKey     string // PEM
}

// Exchanger trades a signed App JWT for an installation access token.
// Retries, if any, belong to the implementation.
type Exchanger interface {
	CreateInstallationToken(ctx context.Context, installationID int64, appJWT string) (Credential, error)
}

// ExchangingFactory mints installation tokens from an App identity and caches
// them until ExpiresAt - safetyMargin.
type ExchangingFactory struct {
	installationID int64
	appID          string
	key            *rsa.PrivateKey
	exchanger      Exchanger
	clock          clockwork.Clock
	safetyMargin   time.Duration

	// exchangeSem admits one exchange at a time; waiters can give up on ctx
	exchangeSem *semaphore.Weighted

	mu     sync.RWMutex
	cached Credential
}

// Option configures an ExchangingFactory
type Option func(*ExchangingFactory)

// WithClock replaces the wall clock, mostly for tests
func WithClock(c clockwork.Clock) Option {
	return func(f *ExchangingFactory) {
		f.clock = c
	}
}

// WithSafetyMargin sets how early a cached token is considered stale
func WithSafetyMargin(d time.Duration) Option {
	return func(f *ExchangingFactory) {
		f.safetyMargin = d
	}
}

// NewExchangingFactory validates the identity and parses the private key.
// It performs no I/O.
func NewExchangingFactory(identity Identity, exchanger Exchanger, opts ...Option) (*ExchangingFactory, error) {
	if identity.InstallationID <= 0 {
		return nil, &ConfigurationError{
			Field: "github.installation",
			Err:   fmt.Errorf("must be a positive integer, got %d", identity.InstallationID),
		}
	}
	if identity.AppID == "" {
		return nil, &ConfigurationError{Field: "appId", Err: errors.New("is empty")}
	}
	if exchanger == nil {
		return nil, &ConfigurationError{Err: errors.New("no token exchanger configured")}
	}

	key, err := ParsePrivateKey(identity.PrivateKey)
	if err != nil {
		return nil, &ConfigurationError{Field: "privateKey", Err: err}
	}

	f := &ExchangingFactory{
		installationID: identity.InstallationID,
		appID:          identity.AppID,
		key:            key,
		exchanger:      exchanger,
		clock:          clockwork.NewRealClock(),
		safetyMargin:   DefaultSafetyMargin,
		exchangeSem:    semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.safetyMargin < 0 {
		return nil, &ConfigurationError{Field: "token.safetyMargin", Err: errors.New("cannot be negative")}
	}

	return f, nil
}

// InstallationID returns the installation tokens are scoped to
func (f *ExchangingFactory) InstallationID() int64 {
	return f.installationID
}

// AccessToken returns the cached token while it is fresh, otherwise exchanges
// a new App JWT for one. Concurrent callers that miss the cache wait for the
// single in-flight exchange and then share its result.
func (f *ExchangingFactory) AccessToken(ctx context.Context) (Credential, error) {
	if cred, ok := f.fresh(); ok {
		return cred, nil
	}

	if err := f.exchangeSem.Acquire(ctx, 1); err != nil {
		return Credential{}, &CredentialExchangeError{InstallationID: f.installationID, Err: err}
	}
	defer f.exchangeSem.Release(1)

	// Another caller may have refreshed the cache while we waited.
	if cred, ok := f.fresh(); ok {
		return cred, nil
	}

	cred, err := f.exchange(ctx)
	if err != nil {
		return Credential{}, &CredentialExchangeError{InstallationID: f.installationID, Err: err}
	}

	f.mu.Lock()
	f.cached = cred
	f.mu.Unlock()

	return cred, nil
}

// fresh returns the cached credential if now < ExpiresAt - safetyMargin
func (f *ExchangingFactory) fresh() (Credential, bool) {
	f.mu.RLock()
	cred := f.cached
	f.mu.RUnlock()

	if cred.Value == "" {
		return Credential{}, false
	}
	if !f.clock.Now().Before(cred.ExpiresAt.Add(-f.safetyMargin)) {
		return Credential{}, false
	}
	return cred, true
}

// exchange signs a JWT and trades it for an installation token. Nothing is
// cached here; the caller stores the result only on success.
func (f *ExchangingFactory) exchange(ctx context.Context) (Credential, error) {
	appJWT, err := SignAppJWT(f.key, f.appID, f.clock.Now())
	if err != nil {
		return Credential{}, err
	}

	cred, err := f.exchanger.CreateInstallationToken(ctx, f.installationID, appJWT)
	if err != nil {
		return Credential{}, err
	}

	// A response that raced a cancellation is discarded.
	if err := ctx.Err(); err != nil {
		return Credential{}, err
	}

	if cred.Value == "" {
		return Credential{}, fmt.Errorf("%w: empty token", ErrMalformedResponse)
	}
	if now := f.clock.Now(); !cred.ExpiresAt.After(now) {
		return Credential{}, fmt.Errorf("%w: expires_at %s is not after %s",
			ErrMalformedResponse, cred.ExpiresAt.Format(time.RFC3339), now.Format(time.RFC3339))
	}

	return cred, nil
}
