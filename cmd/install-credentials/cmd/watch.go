// file: cmd/install-credentials/cmd/watch.go
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"install-credentials/internal/app"
	"install-credentials/internal/lifecycle"
	"install-credentials/internal/logger"
)

func newWatchCmd() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the installed token fresh until stopped",
		Long: `The watch command installs a token immediately and then again every
--interval, or on the cron --schedule when one is given. Cached installation
tokens are reused until they near expiry, so most runs do not call GitHub.
SIGHUP re-reads configuration and secrets; SIGINT or SIGTERM stops.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}

	watchCmd.Flags().Duration("interval", 5*time.Minute, "How often to re-install the token")
	watchCmd.Flags().String("schedule", "", "Cron expression to re-install on instead of --interval, e.g. '*/10 * * * *'")
	watchCmd.Flags().String("metrics-address", "", "Serve Prometheus metrics on this address, e.g. :9090")
	return watchCmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("install-credentials watch starting",
		"version", version,
		"interval", cfg.Watch.Interval,
		"schedule", cfg.Watch.Schedule)

	ctx := cmd.Context()
	first := true
	createApp := func() (lifecycle.Application, error) {
		appCfg := cfg
		if !first {
			reloaded, err := loadConfig(cmd)
			if err != nil {
				return nil, err
			}
			appCfg = reloaded
		}
		first = false
		return app.NewWatchApp(ctx, appCfg, cmd.OutOrStdout())
	}

	return lifecycle.RunWithReload(ctx, createApp, log)
}
