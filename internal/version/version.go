package version

import (
	"fmt"
	"io"
)

// Build-time variables (set via ldflags during CI/CD builds)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "conform (version: %s)\n", Version)
	if BuildTime != "unknown" {
		fmt.Fprintf(w, "Build Time: %s\n", BuildTime)
	}
	if GitCommit != "unknown" {
		fmt.Fprintf(w, "Git Commit: %s\n", GitCommit)
	}
}
