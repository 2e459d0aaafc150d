// file: cmd/install-credentials/cmd/print_config.go
package cmd

import (
	"github.com/spf13/cobra"
)

func newPrintConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print-config",
		Short: "Print the effective configuration as YAML with secrets redacted",
		Long: `The print-config command merges the config file, environment and flags
exactly as install does, validates the result and prints it. Tokens, passwords
and the secrets blob are shown as [redacted].`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return cfg.WriteYAML(cmd.OutOrStdout())
		},
	}
}
