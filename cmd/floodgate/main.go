// Floodgate - rate-limited concurrent dispatcher for API request batches.
package main

import (
	"os"

	"github.com/floodgate-io/floodgate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		// Cobra already printed the error; just set the exit code.
		os.Exit(1)
	}
}
