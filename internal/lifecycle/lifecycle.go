// file: internal/lifecycle/lifecycle.go

package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"install-credentials/internal/logger"
)

// RunWithReload runs the application built by createApp until ctx is
// cancelled. On SIGHUP createApp is called again, so configuration and
// credentials are re-read from scratch. The running instance is replaced
// only when the rebuild succeeds; otherwise it keeps running.
func RunWithReload(ctx context.Context, createApp func() (Application, error), log *logger.Logger) error {
	reloadSig := make(chan os.Signal, 1)
	signal.Notify(reloadSig, syscall.SIGHUP)
	defer signal.Stop(reloadSig)

	return run(ctx, createApp, reloadSig, log)
}

func run(ctx context.Context, createApp func() (Application, error), reload <-chan os.Signal, log *logger.Logger) error {
	application, err := createApp()
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	reloadCount := 0

	for {
		appCtx, cancel := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func(a Application) {
			errCh <- a.Run(appCtx)
		}(application)

		var (
			next   Application
			runErr error
		)

	wait:
		for {
			select {
			case <-ctx.Done():
				log.Info("shutdown requested", "reason", context.Cause(ctx))
				break wait

			case sig := <-reload:
				reloadCount++
				log.Info("reload signal received", "signal", sig, "reloadCount", reloadCount)

				startTime := time.Now()
				rebuilt, err := createApp()
				if err != nil {
					log.Error("failed to reload application, keeping the running instance",
						"reloadCount", reloadCount,
						"error", err)
					continue
				}
				log.Info("application reload completed",
					"reloadCount", reloadCount,
					"duration", time.Since(startTime))
				next = rebuilt
				break wait

			case runErr = <-errCh:
				if runErr != nil {
					log.Error("application stopped with error",
						"error", runErr,
						"reloadCount", reloadCount)
				}
				break wait
			}
		}

		cancel()
		closeApp(application, log)

		if next == nil {
			log.Info("shutdown complete")
			return runErr
		}
		application = next
	}
}

func closeApp(application Application, log *logger.Logger) {
	closeStart := time.Now()
	if err := application.Close(); err != nil {
		log.Error("error during application close",
			"error", err,
			"duration", time.Since(closeStart))
		return
	}
	log.Debug("application closed", "duration", time.Since(closeStart))
}
