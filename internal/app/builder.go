// file: internal/app/builder.go

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"install-credentials/config"
	"install-credentials/internal/github"
	"install-credentials/internal/installer"
	"install-credentials/internal/logger"
	"install-credentials/internal/metrics"
	"install-credentials/internal/resolver"
	"install-credentials/internal/sink"
	"install-credentials/internal/token"
)

const (
	// collectorInterval is how often system metrics are sampled in watch mode
	collectorInterval = 15 * time.Second

	serverShutdownTimeout = 5 * time.Second
)

// BaseApp holds the initialized components shared by the install and watch
// commands.
type BaseApp struct {
	Config        *config.Config
	Logger        *logger.Logger
	Metrics       *metrics.Metrics
	GitHub        *github.Client
	Factory       token.Factory
	Sinks         []sink.Sink
	Installer     *installer.Installer
	MetricsServer *http.Server
	Collector     *metrics.Collector

	closeOnce sync.Once
	closeErr  error
}

// AppBuilder constructs the BaseApp components fluently.
type AppBuilder struct {
	cfg         *config.Config
	stdout      io.Writer
	factoryOpts []token.Option
	base        *BaseApp
	err         error
}

// NewAppBuilder creates a new builder.
func NewAppBuilder(cfg *config.Config) *AppBuilder {
	return &AppBuilder{
		cfg:    cfg,
		stdout: os.Stdout,
		base:   &BaseApp{Config: cfg, Logger: logger.NewNopLogger()},
	}
}

// WithStdout replaces the writer used by the stdout sink.
func (b *AppBuilder) WithStdout(w io.Writer) *AppBuilder {
	b.stdout = w
	return b
}

// WithLogger creates the logger.
func (b *AppBuilder) WithLogger() *AppBuilder {
	if b.err != nil {
		return b
	}
	b.base.Logger, b.err = logger.NewLogger(&b.cfg.Logging)
	if b.err != nil {
		b.err = fmt.Errorf("failed to initialize logger: %w", b.err)
	}
	return b
}

// WithMetrics creates the registry when metrics are pushed or served.
func (b *AppBuilder) WithMetrics() *AppBuilder {
	if b.err != nil {
		return b
	}
	if !b.cfg.Metrics.Enabled() && b.cfg.Metrics.Address == "" {
		b.base.Logger.Debug("metrics disabled")
		return b
	}

	var err error
	b.base.Metrics, err = metrics.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		b.err = fmt.Errorf("failed to create metrics service: %w", err)
	}
	return b
}

// WithMetricsServer prepares the HTTP server for the registry and starts the
// system metrics collector. The server only listens once serveMetrics is
// called, so a rebuilt app never competes with the old one for the address.
// Only long-running commands use it.
func (b *AppBuilder) WithMetricsServer(ctx context.Context) *AppBuilder {
	if b.err != nil || b.base.Metrics == nil || b.cfg.Metrics.Address == "" {
		return b
	}

	reg := b.base.Metrics.GetRegistry()
	mux := http.NewServeMux()
	mux.Handle(b.cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry:          reg,
		EnableOpenMetrics: true,
	}))

	b.base.MetricsServer = &http.Server{
		Addr:              b.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	b.base.Collector = metrics.NewCollector(b.base.Metrics, collectorInterval, nil)
	b.base.Collector.Start(ctx)

	return b
}

// WithGitHubClient creates the API client used for the token exchange and
// for verification.
func (b *AppBuilder) WithGitHubClient() *AppBuilder {
	if b.err != nil {
		return b
	}
	b.base.GitHub, b.err = github.NewClient(github.Config{
		BaseURL:  b.cfg.GitHub.APIURL,
		Timeout:  b.cfg.GitHub.Timeout,
		RetryMax: b.cfg.GitHub.RetryMax,
	}, b.base.Logger)
	if b.err != nil {
		b.err = fmt.Errorf("failed to create GitHub client: %w", b.err)
	}
	return b
}

// WithFactoryOptions adds options applied when an exchanging factory is built.
func (b *AppBuilder) WithFactoryOptions(opts ...token.Option) *AppBuilder {
	b.factoryOpts = append(b.factoryOpts, opts...)
	return b
}

// WithTokenFactory resolves the credential source. Resolution failures are
// returned unwrapped so callers can match *token.ConfigurationError.
func (b *AppBuilder) WithTokenFactory() *AppBuilder {
	if b.err != nil {
		return b
	}

	opts := append([]token.Option{token.WithSafetyMargin(b.cfg.Token.SafetyMargin)}, b.factoryOpts...)
	b.base.Factory, b.err = resolver.Resolve(resolver.Config{
		Token:          b.cfg.GitHub.Token,
		InstallationID: b.cfg.GitHub.Installation,
		Secrets:        b.cfg.Secrets,
	}, b.base.GitHub, opts...)
	if b.err != nil {
		return b
	}

	b.base.Logger.Info("credential source resolved",
		"source", token.SourceOf(b.base.Factory),
		"installation", b.cfg.GitHub.Installation)
	return b
}

// WithSinks opens every configured output.
func (b *AppBuilder) WithSinks() *AppBuilder {
	if b.err != nil {
		return b
	}

	out := b.cfg.Output
	if out.Destination != "" {
		fs, err := sink.NewFileSink(out.Destination, out.Format, b.cfg.GitHub.Host, b.base.Logger)
		if err != nil {
			b.err = fmt.Errorf("failed to create file sink: %w", err)
			return b
		}
		b.base.Sinks = append(b.base.Sinks, fs)
	}

	if out.Stdout {
		b.base.Sinks = append(b.base.Sinks, sink.NewStdoutSink(b.stdout))
	}

	if b.cfg.NATS.Enabled() {
		kv, err := sink.NewKVSink(&b.cfg.NATS, b.base.Logger)
		if err != nil {
			b.err = fmt.Errorf("failed to create NATS KV sink: %w", err)
			return b
		}
		b.base.Sinks = append(b.base.Sinks, kv)
	}

	return b
}

// WithInstaller ties the factory to the sinks.
func (b *AppBuilder) WithInstaller() *AppBuilder {
	if b.err != nil {
		return b
	}

	opts := []installer.Option{
		installer.WithLogger(b.base.Logger),
		installer.WithMetrics(b.base.Metrics),
		installer.WithTimeout(installTimeout(b.cfg)),
	}
	if b.cfg.GitHub.Verify {
		opts = append(opts, installer.WithVerifier(b.base.GitHub))
	}

	b.base.Installer, b.err = installer.New(b.base.Factory, b.base.Sinks, opts...)
	if b.err != nil {
		b.err = fmt.Errorf("failed to create installer: %w", b.err)
	}
	return b
}

// Build finalizes the construction and returns the BaseApp. Anything opened
// before a failing step is closed again.
func (b *AppBuilder) Build() (*BaseApp, error) {
	if b.err != nil {
		_ = b.base.Close()
		return nil, b.err
	}
	return b.base, nil
}

// installTimeout leaves room for every retry of the exchange plus the writes
func installTimeout(cfg *config.Config) time.Duration {
	perRun := cfg.GitHub.Timeout * time.Duration(cfg.GitHub.RetryMax+1)
	if cfg.GitHub.Verify {
		perRun *= 2
	}
	if perRun < installer.DefaultTimeout {
		return installer.DefaultTimeout
	}
	return perRun
}

// serveMetrics starts listening in the background. Errors are logged.
func (a *BaseApp) serveMetrics() {
	if a.MetricsServer == nil {
		return
	}
	go func(srv *http.Server, log *logger.Logger) {
		log.Info("starting metrics server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}(a.MetricsServer, a.Logger)
}

// Close releases everything the builder opened. Safe to call more than once.
func (a *BaseApp) Close() error {
	a.closeOnce.Do(func() {
		a.closeErr = a.close()
	})
	return a.closeErr
}

func (a *BaseApp) close() error {
	var errs []error

	if a.Collector != nil {
		a.Collector.Stop()
	}

	if a.MetricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		if err := a.MetricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown metrics server: %w", err))
		}
	}

	for _, s := range a.Sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close %s sink: %w", s.Name(), err))
			}
		}
	}

	if a.Logger != nil {
		_ = a.Logger.Sync()
	}

	return errors.Join(errs...)
}
