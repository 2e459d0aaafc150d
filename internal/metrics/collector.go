// file: internal/metrics/collector.go

package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Collector periodically samples system metrics while a long-running command
// is active
type Collector struct {
	metrics        *Metrics
	updateInterval time.Duration
	clock          clockwork.Clock

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCollector(m *Metrics, updateInterval time.Duration, clock clockwork.Clock) *Collector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Collector{metrics: m, updateInterval: updateInterval, clock: clock}
}

// Start samples once immediately and then on every tick until Stop or ctx is done
func (c *Collector) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.metrics.UpdateSystemMetrics()

	c.wg.Add(1)
	go c.collect(ctx)
}

// Stop blocks until the collector goroutine has exited
func (c *Collector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Collector) collect(ctx context.Context) {
	defer c.wg.Done()

	ticker := c.clock.NewTicker(c.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.metrics.UpdateSystemMetrics()
		}
	}
}
