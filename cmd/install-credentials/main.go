// file: cmd/install-credentials/main.go
package main

import (
	"os"

	"install-credentials/cmd/install-credentials/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		// Cobra prints the error, so we just need to exit
		os.Exit(1)
	}
}
