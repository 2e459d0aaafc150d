// file: internal/installer/installer.go

// Package installer runs one credential install: obtain a token from the
// factory, optionally check it against GitHub, then hand it to every sink.
package installer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"

	"install-credentials/internal/github"
	"install-credentials/internal/logger"
	"install-credentials/internal/metrics"
	"install-credentials/internal/sink"
	"install-credentials/internal/token"
)

// DefaultTimeout bounds a whole run, token exchange and sink writes included
const DefaultTimeout = 30 * time.Second

// Verifier checks that a token is accepted by GitHub
type Verifier interface {
	VerifyToken(ctx context.Context, src oauth2.TokenSource) (github.RateLimit, error)
}

// Result describes a successful run
type Result struct {
	RunID      string
	Source     string
	Credential token.Credential
	Sinks      []string
}

// Installer ties a token factory to its sinks
type Installer struct {
	factory  token.Factory
	sinks    []sink.Sink
	verifier Verifier
	logger   *logger.Logger
	metrics  *metrics.Metrics
	clock    clockwork.Clock
	timeout  time.Duration
}

type Option func(*Installer)

// WithVerifier enables a post-mint check of the token
func WithVerifier(v Verifier) Option {
	return func(i *Installer) {
		i.verifier = v
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(i *Installer) {
		i.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Installer) {
		i.metrics = m
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(i *Installer) {
		i.clock = c
	}
}

// WithTimeout overrides DefaultTimeout; zero disables the run deadline
func WithTimeout(d time.Duration) Option {
	return func(i *Installer) {
		i.timeout = d
	}
}

// New creates an installer. At least one sink is required.
func New(factory token.Factory, sinks []sink.Sink, opts ...Option) (*Installer, error) {
	if factory == nil {
		return nil, errors.New("installer requires a token factory")
	}
	if len(sinks) == 0 {
		return nil, errors.New("installer requires at least one sink")
	}

	i := &Installer{
		factory: factory,
		sinks:   sinks,
		logger:  logger.NewNopLogger(),
		clock:   clockwork.NewRealClock(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Install performs one run. A failed sink does not stop the others, but any
// failure makes the run fail.
func (i *Installer) Install(ctx context.Context) (Result, error) {
	runID := uuid.NewString()
	source := token.SourceOf(i.factory)
	log := i.logger.With("runId", runID, "source", source)
	start := i.clock.Now()

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	result, err := i.install(ctx, log)
	result.RunID = runID
	result.Source = source

	duration := i.clock.Since(start)
	i.metrics.ObserveInstall(source, err, duration)

	if err != nil {
		log.Error("install failed", "error", err, "duration", duration)
		return result, err
	}

	i.metrics.SetTokenInstalled(result.Credential.ExpiresAt, i.clock.Now())
	log.Info("credentials installed",
		"sinks", result.Sinks,
		"expiresAt", result.Credential.ExpiresAt,
		"duration", duration)

	return result, nil
}

func (i *Installer) install(ctx context.Context, log *logger.Logger) (Result, error) {
	log.Debug("obtaining access token")

	cred, err := i.factory.AccessToken(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to obtain access token: %w", err)
	}

	if i.verifier != nil {
		limit, err := i.verifier.VerifyToken(ctx, token.StaticTokenSource(cred))
		if err != nil {
			return Result{}, fmt.Errorf("token rejected by GitHub: %w", err)
		}
		log.Debug("token verified", "rateLimit", limit.Limit, "remaining", limit.Remaining)
	}

	result := Result{Credential: cred}

	var errs []error
	for _, s := range i.sinks {
		if err := s.Write(ctx, cred); err != nil {
			i.metrics.IncSinkFailure(s.Name())
			log.Warn("sink write failed", "sink", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
			continue
		}
		result.Sinks = append(result.Sinks, s.Name())
	}

	if len(errs) > 0 {
		return result, errors.Join(errs...)
	}
	return result, nil
}
