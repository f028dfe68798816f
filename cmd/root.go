package cmd

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	configCmd "github.com/sidkik/labsync/cmd/config"
	"github.com/sidkik/labsync/cmd/listen"
	"github.com/sidkik/labsync/cmd/util"
	"github.com/sidkik/labsync/cmd/version"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "LABSYNC_LOG_VERBOSE"

// defaultCommand runs when labsync is invoked without a subcommand.
const defaultCommand = "listen"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := newRootCommand()
	rootCmd.SetArgs(withDefaultCommand(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "labsync",
		Short:        "Mirror a local directory to remote servers over ssh",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		configCmd.New(),
		listen.New(),
		version.New(),
	)
	return rootCmd
}

// withDefaultCommand prepends the default command when no subcommand is
// given. Flags alone (e.g. `labsync -p run1`) are passed to it too.
func withDefaultCommand(args []string) []string {
	if len(args) == 0 {
		return []string{defaultCommand}
	}

	switch args[0] {
	case "-h", "--help", "help", "completion":
		return args
	}
	if strings.HasPrefix(args[0], "-") {
		return append([]string{defaultCommand}, args...)
	}
	return args
}
