// file: internal/metrics/push.go

package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

// Push sends the current registry to a Prometheus Pushgateway, replacing any
// metrics previously pushed for the same job and grouping.
func (m *Metrics) Push(ctx context.Context, url, job string, grouping map[string]string) error {
	if m == nil {
		return nil
	}

	pusher := push.New(url, job).Gatherer(m.registry)
	for name, value := range grouping {
		pusher = pusher.Grouping(name, value)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
