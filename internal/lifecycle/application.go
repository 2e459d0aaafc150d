// file: internal/lifecycle/application.go

// Package lifecycle runs long-lived commands with graceful shutdown and
// rebuild-on-SIGHUP.
package lifecycle

import "context"

// Application is a runnable unit that can be torn down and rebuilt.
type Application interface {
	// Run blocks until ctx is cancelled or a fatal error occurs. Normal
	// shutdown returns nil.
	Run(ctx context.Context) error

	// Close releases everything the application holds: schedulers,
	// connections and servers. It must be safe to call more than once.
	Close() error
}
