// file: internal/refresh/manager.go

// Package refresh keeps installed credentials current by re-running the
// installer on a fixed schedule.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"install-credentials/internal/installer"
	"install-credentials/internal/logger"
)

const (
	jobName = "install-credentials"

	// stopTimeout bounds how long Close waits for a running install
	stopTimeout = 30 * time.Second
)

// Installer performs one install run
type Installer interface {
	Install(ctx context.Context) (installer.Result, error)
}

// AfterRunFunc is called after every run, successful or not
type AfterRunFunc func(ctx context.Context, res installer.Result, err error)

// Manager schedules install runs. It satisfies lifecycle.Application.
type Manager struct {
	installer Installer
	interval  time.Duration
	cronExpr  string
	logger    *logger.Logger
	clock     clockwork.Clock
	afterRun  AfterRunFunc

	scheduler gocron.Scheduler
	job       gocron.Job

	ctx    context.Context
	cancel context.CancelFunc

	runs                atomic.Int64
	consecutiveFailures atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

type Option func(*Manager)

func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithCronSchedule runs installs on a standard five-field cron expression
// instead of the fixed interval
func WithCronSchedule(expr string) Option {
	return func(m *Manager) {
		m.cronExpr = expr
	}
}

// WithAfterRun registers a hook run after each install, e.g. a metrics push
func WithAfterRun(fn AfterRunFunc) Option {
	return func(m *Manager) {
		m.afterRun = fn
	}
}

// NewManager creates the scheduler and registers the install job. Nothing
// runs until Run is called.
func NewManager(inst Installer, interval time.Duration, log *logger.Logger, opts ...Option) (*Manager, error) {
	if inst == nil {
		return nil, errors.New("refresh manager requires an installer")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %s", interval)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		installer: inst,
		interval:  interval,
		logger:    log,
		clock:     clockwork.NewRealClock(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(m)
	}

	scheduler, err := gocron.NewScheduler(
		gocron.WithClock(m.clock),
		gocron.WithLogger(log),
		gocron.WithStopTimeout(stopTimeout),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	definition := gocron.DurationJob(interval)
	if m.cronExpr != "" {
		definition = gocron.CronJob(m.cronExpr, false)
	}

	job, err := scheduler.NewJob(
		definition,
		gocron.NewTask(m.runOnce),
		gocron.WithName(jobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithEventListeners(
			gocron.AfterJobRunsWithError(m.onJobError),
		),
	)
	if err != nil {
		cancel()
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("failed to schedule install job: %w", err)
	}

	m.scheduler = scheduler
	m.job = job
	return m, nil
}

// Run starts the schedule, installing immediately, and blocks until ctx is
// cancelled or the manager is closed.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("starting refresh manager", "schedule", m.describe(), "jobId", m.job.ID())
	m.scheduler.Start()

	select {
	case <-ctx.Done():
	case <-m.ctx.Done():
	}

	m.logger.Info("refresh manager stopping", "runs", m.runs.Load())
	return nil
}

// Close stops the scheduler and waits for an in-flight run. Safe to call more
// than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.cancel()
		if err := m.scheduler.Shutdown(); err != nil {
			m.closeErr = fmt.Errorf("failed to stop scheduler: %w", err)
		}
		m.logger.Info("refresh manager stopped")
	})
	return m.closeErr
}

// Runs returns the number of completed install runs
func (m *Manager) Runs() int64 {
	return m.runs.Load()
}

// ConsecutiveFailures returns how many runs in a row have failed
func (m *Manager) ConsecutiveFailures() int64 {
	return m.consecutiveFailures.Load()
}

// NextRun reports when the next install is scheduled
func (m *Manager) NextRun() (time.Time, error) {
	return m.job.NextRun()
}

func (m *Manager) runOnce() error {
	res, err := m.installer.Install(m.ctx)
	m.runs.Add(1)

	if err != nil {
		m.consecutiveFailures.Add(1)
	} else {
		if n := m.consecutiveFailures.Swap(0); n > 0 {
			m.logger.Info("install recovered", "failedRuns", n, "runId", res.RunID)
		}
	}

	if m.afterRun != nil {
		m.afterRun(m.ctx, res, err)
	}
	return err
}

func (m *Manager) onJobError(jobID uuid.UUID, name string, err error) {
	m.logger.Warn("scheduled install failed",
		"jobId", jobID,
		"job", name,
		"error", err,
		"consecutiveFailures", m.consecutiveFailures.Load(),
		"schedule", m.describe())
}

func (m *Manager) describe() string {
	if m.cronExpr != "" {
		return m.cronExpr
	}
	return "every " + m.interval.String()
}
