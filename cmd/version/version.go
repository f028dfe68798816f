package version

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sidkik/labsync/pkg/version"
)

// Mocked out for unit testing.
var stdout io.Writer = os.Stdout

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of labsync.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(stdout, "labsync version: %s\n", version.Version)
		},
	}
}
