package main

import (
	"fmt"
	"os"

	"github.com/Use-Tusk/checkout-conformance/cmd"
	"github.com/Use-Tusk/checkout-conformance/internal/conferr"
	"github.com/Use-Tusk/checkout-conformance/internal/log"
)

func main() {
	err := cmd.Execute()
	log.Shutdown()

	if err != nil {
		// Failed tests were already reported.
		if conferr.ClassOf(err) != conferr.TestsFailed {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(conferr.ExitCode(err))
	}
}
