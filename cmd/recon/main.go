// Command recon reconciles the outcome of externally executed analysis
// jobs with their job assignment records.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/recon/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			// Cobra usage and flag errors are not reported by the commands.
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
