// Command secwebscan is the reconnaissance orchestrator entry point.
package main

import (
	"github.com/secwebscan/secwebscan/cmd/cli"
)

// Build information - set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
