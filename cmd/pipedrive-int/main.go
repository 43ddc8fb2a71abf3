// ONLYOFFICE connector for the Pipedrive CRM.
package main

import (
	"os"

	"github.com/onlyoffice/pipedrive-int/internal/cli"
)

// Version information
var (
	Version   = "v1.2.0"
	BuildTime = "2026-08-28"
)

func main() {
	// Propagate build metadata to the CLI layer (overridden via LDFLAGS
	// for release builds).
	cli.Version = Version
	cli.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
