package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/floodgate-io/floodgate/internal/version"
)

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("floodgate %s (built %s)\n", version.Version, version.BuildTime)
		},
	}
}
