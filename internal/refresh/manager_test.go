// file: internal/refresh/manager_test.go

package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"install-credentials/internal/installer"
	"install-credentials/internal/token"
)

type countingInstaller struct {
	calls atomic.Int32
	fail  func(n int32) error
	ran   chan struct{}
}

func newCountingInstaller() *countingInstaller {
	return &countingInstaller{ran: make(chan struct{}, 100)}
}

func (c *countingInstaller) Install(ctx context.Context) (installer.Result, error) {
	n := c.calls.Add(1)
	defer func() {
		select {
		case c.ran <- struct{}{}:
		default:
		}
	}()
	if c.fail != nil {
		if err := c.fail(n); err != nil {
			return installer.Result{}, err
		}
	}
	return installer.Result{RunID: "run", Credential: token.Credential{Value: "ghs_abc"}}, nil
}

func waitForRuns(t *testing.T, c *countingInstaller, n int) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-c.ran:
		case <-timeout:
			t.Fatalf("saw %d runs, want %d", c.calls.Load(), n)
		}
	}
}

func TestManager_RunsImmediatelyAndRepeats(t *testing.T) {
	inst := newCountingInstaller()
	m, err := NewManager(inst, 20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewManager() unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	waitForRuns(t, inst, 3)

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close() unexpected error: %v", err)
	}
	if m.Runs() < 3 {
		t.Errorf("Runs() = %d, want >= 3", m.Runs())
	}
}

func TestManager_FailuresDoNotStopSchedule(t *testing.T) {
	inst := newCountingInstaller()
	inst.fail = func(n int32) error {
		if n <= 2 {
			return errors.New("github unavailable")
		}
		return nil
	}

	var (
		m        *Manager
		mu       sync.Mutex
		results  []error
		failures []int64
		hookRan  = make(chan struct{}, 100)
	)
	m, err := NewManager(inst, 20*time.Millisecond, nil, WithAfterRun(func(ctx context.Context, res installer.Result, err error) {
		mu.Lock()
		results = append(results, err)
		failures = append(failures, m.ConsecutiveFailures())
		mu.Unlock()
		select {
		case hookRan <- struct{}{}:
		default:
		}
	}))
	if err != nil {
		t.Fatalf("NewManager() unexpected error: %v", err)
	}
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	timeout := time.After(5 * time.Second)
	for i := 0; i < 3; i++ {
		select {
		case <-hookRan:
		case <-timeout:
			t.Fatalf("saw %d runs, want 3", inst.calls.Load())
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if results[0] == nil || results[1] == nil || results[2] != nil {
		t.Errorf("after-run results = %v, want [err err nil ...]", results[:3])
	}
	want := []int64{1, 2, 0}
	for i, w := range want {
		if failures[i] != w {
			t.Errorf("consecutive failures after run %d = %d, want %d", i+1, failures[i], w)
		}
	}
}

func TestManager_CloseStopsRuns(t *testing.T) {
	inst := newCountingInstaller()
	m, err := NewManager(inst, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewManager() unexpected error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()
	waitForRuns(t, inst, 1)

	if err := m.Close(); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after Close()")
	}

	after := inst.calls.Load()
	time.Sleep(50 * time.Millisecond)
	if got := inst.calls.Load(); got != after {
		t.Errorf("runs continued after Close(): %d -> %d", after, got)
	}

	if err := m.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
}

func TestNewManager_Validation(t *testing.T) {
	if _, err := NewManager(nil, time.Minute, nil); err == nil {
		t.Error("NewManager() without installer expected error")
	}
	if _, err := NewManager(newCountingInstaller(), 0, nil); err == nil {
		t.Error("NewManager() with zero interval expected error")
	}
}

func TestManager_CronSchedule(t *testing.T) {
	m, err := NewManager(newCountingInstaller(), time.Minute, nil, WithCronSchedule("0 3 * * *"))
	if err != nil {
		t.Fatalf("NewManager() unexpected error: %v", err)
	}
	defer m.Close()

	if got := m.describe(); got != "0 3 * * *" {
		t.Errorf("describe() = %q, want the cron expression", got)
	}

	if _, err := NewManager(newCountingInstaller(), time.Minute, nil, WithCronSchedule("not a schedule")); err == nil {
		t.Error("NewManager() with an invalid cron expression expected error")
	}
}
