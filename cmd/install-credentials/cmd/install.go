// file: cmd/install-credentials/cmd/install.go
package cmd

import (
	"github.com/spf13/cobra"

	"install-credentials/internal/app"
)

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Obtain a token once and write it to every configured destination",
		Long: `The install command resolves the credential source, obtains a token
(exchanging an App JWT for an installation token when no token is supplied)
and writes it to the destination file, stdout and/or a NATS KV bucket.
It is also what runs when no subcommand is given.`,
		Args: cobra.NoArgs,
		RunE: runInstall,
	}
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	_, err = app.RunOnce(cmd.Context(), cfg, cmd.OutOrStdout())
	return err
}
