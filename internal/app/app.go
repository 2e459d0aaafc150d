// file: internal/app/app.go

// Package app assembles the install-credentials components from
// configuration and runs them either once or on a schedule.
package app

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"install-credentials/config"
	"install-credentials/internal/installer"
	"install-credentials/internal/refresh"
	"install-credentials/internal/token"
)

const pushTimeout = 10 * time.Second

// RunOnce installs credentials a single time and pushes run metrics when a
// Pushgateway is configured.
func RunOnce(ctx context.Context, cfg *config.Config, stdout io.Writer) (installer.Result, error) {
	base, err := NewAppBuilder(cfg).
		WithStdout(stdout).
		WithLogger().
		WithMetrics().
		WithGitHubClient().
		WithTokenFactory().
		WithSinks().
		WithInstaller().
		Build()
	if err != nil {
		return installer.Result{}, err
	}
	defer base.Close()

	res, err := base.Installer.Install(ctx)
	base.pushMetrics(ctx)
	return res, err
}

// WatchApp re-installs credentials on an interval until stopped. It
// implements lifecycle.Application so SIGHUP rebuilds it from fresh config.
type WatchApp struct {
	base    *BaseApp
	manager *refresh.Manager
}

// NewWatchApp builds the components and the schedule. Nothing runs until Run.
func NewWatchApp(ctx context.Context, cfg *config.Config, stdout io.Writer) (*WatchApp, error) {
	// A token written by one run must outlive the next run, so the cache
	// treats it as stale one interval earlier than in one-shot mode.
	margin := cfg.Token.SafetyMargin + cfg.Watch.Period(time.Now())

	base, err := NewAppBuilder(cfg).
		WithStdout(stdout).
		WithLogger().
		WithMetrics().
		WithMetricsServer(ctx).
		WithGitHubClient().
		WithFactoryOptions(token.WithSafetyMargin(margin)).
		WithTokenFactory().
		WithSinks().
		WithInstaller().
		Build()
	if err != nil {
		return nil, err
	}

	if margin >= time.Hour {
		base.Logger.Warn("watch period plus safety margin exceeds the installation token lifetime; every run will mint a new token",
			"period", cfg.Watch.Period(time.Now()),
			"safetyMargin", cfg.Token.SafetyMargin)
	}

	opts := []refresh.Option{
		refresh.WithAfterRun(func(ctx context.Context, _ installer.Result, _ error) {
			base.pushMetrics(ctx)
		}),
	}
	if cfg.Watch.Schedule != "" {
		opts = append(opts, refresh.WithCronSchedule(cfg.Watch.Schedule))
	}

	manager, err := refresh.NewManager(base.Installer, cfg.Watch.Interval, base.Logger, opts...)
	if err != nil {
		_ = base.Close()
		return nil, fmt.Errorf("failed to create refresh manager: %w", err)
	}

	return &WatchApp{base: base, manager: manager}, nil
}

func (w *WatchApp) Run(ctx context.Context) error {
	w.base.serveMetrics()
	return w.manager.Run(ctx)
}

func (w *WatchApp) Close() error {
	managerErr := w.manager.Close()
	baseErr := w.base.Close()
	if managerErr != nil {
		return managerErr
	}
	return baseErr
}

// Manager exposes the schedule, mainly for tests
func (w *WatchApp) Manager() *refresh.Manager {
	return w.manager
}

// pushMetrics sends the registry to the Pushgateway. Failures are logged
// and never fail the run.
func (a *BaseApp) pushMetrics(ctx context.Context) {
	if a.Metrics == nil || !a.Config.Metrics.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()

	grouping := map[string]string{}
	if id := a.Config.GitHub.Installation; id > 0 {
		grouping["installation"] = strconv.FormatInt(id, 10)
	}

	if err := a.Metrics.Push(ctx, a.Config.Metrics.PushgatewayURL, a.Config.Metrics.Job, grouping); err != nil {
		a.Logger.Warn("failed to push metrics", "error", err)
		return
	}
	a.Logger.Debug("metrics pushed", "url", a.Config.Metrics.PushgatewayURL)
}
