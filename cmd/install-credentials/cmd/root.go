// file: cmd/install-credentials/cmd/root.go
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"install-credentials/config"
)

// version is set at build time with -ldflags "-X ...cmd.version=..."
var version = "dev"

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the command tree. Without a subcommand it installs
// credentials once.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "install-credentials",
		Short: "Install a GitHub App installation token where git and other tools can find it.",
		Long: `install-credentials obtains a GitHub access token and writes it to one or more
destinations. The token is either supplied directly (--github-token) or minted
for an App installation (--installation) from the App secrets blob in
INSTALL_CREDENTIALS_SECRETS or OWLBOT_SECRETS.`,
		Version:      version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         runInstall,
	}

	addCommonFlags(root.PersistentFlags())
	root.AddCommand(newInstallCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newPrintConfigCmd())

	return root
}

func addCommonFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a config file (yaml or json)")
	fs.Int64("installation", 0, "GitHub App installation ID to mint a token for")
	fs.String("github-token", "", "Pre-issued GitHub token; skips the App token exchange")
	fs.String("api-url", "https://api.github.com", "GitHub API base URL")
	fs.String("host", "github.com", "Host written into git-credentials lines")
	fs.Duration("timeout", 30*time.Second, "Timeout for each GitHub API attempt")
	fs.Bool("verify", false, "Check the token against the GitHub API before writing it")
	fs.String("destination", "/workspace/.git-credentials", "File to write the credential to (empty to disable)")
	fs.String("format", config.FormatRaw, "File format: raw or git-credentials")
	fs.Bool("stdout", false, "Also print the token to standard output")
	fs.Duration("safety-margin", 60*time.Second, "Treat a cached token as expired this long before it does")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.String("pushgateway-url", "", "Prometheus Pushgateway to push run metrics to")
}

// loadConfig reads configuration using the command's merged flag set
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	return config.Load(configPath, cmd.Flags())
}
