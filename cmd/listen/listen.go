package listen

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/sidkik/labsync/cmd/util"
	"github.com/sidkik/labsync/pkg/config"
	"github.com/sidkik/labsync/pkg/errors"
	"github.com/sidkik/labsync/pkg/session"
)

// Mocked out for unit testing.
var (
	stdin      io.Reader = os.Stdin
	stdout     io.Writer = os.Stdout
	isTerminal           = func() bool { return terminal.IsTerminal(int(os.Stdout.Fd())) }
	newSession           = session.New
)

type options struct {
	configPath    string
	root          string
	remoteSubPath string
	noClear       bool
}

// New creates a new `listen` command.
func New() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Mirror local file changes to the configured servers",
		Long: "Watch the local directory and copy every created, modified or " +
			"renamed file to each enabled server.\n" +
			"Type `pause` or `resume` while it's running to control syncing. " +
			"Deletions are never synced.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath,
		"The path to the labsync configuration.")
	cmd.Flags().StringVar(&opts.root, "root", "",
		"The local directory to watch. Defaults to `local_path` in the "+
			"configuration, or the current directory.")
	cmd.Flags().StringVarP(&opts.remoteSubPath, "path", "p", "",
		"A subdirectory to sync into, relative to each server's remote path.")
	cmd.Flags().BoolVar(&opts.noClear, "no-clear", false,
		"Don't clear the terminal when reporting that all servers are up to date.")
	return cmd
}

func run(opts options) error {
	cfg, err := config.Parse(opts.configPath)
	if err != nil {
		switch cause := errors.RootCause(err).(type) {
		case errors.FileNotFound:
			return errors.NewFriendlyError("Configuration not found at %q. "+
				"Run `labsync init` to create one.", cause.Path)
		case errors.MissingFieldError:
			return errors.NewFriendlyError("The configuration at %q has no servers. "+
				"Run `labsync init` to add some.", opts.configPath)
		default:
			return errors.WithContext(err, "parse config")
		}
	}

	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})

	s, err := newSession(cfg, session.Options{
		Root:          opts.root,
		RemoteSubPath: opts.remoteSubPath,
		ClearScreen:   !opts.noClear && isTerminal(),
		Logger:        logrus.StandardLogger(),
	})
	if err != nil {
		return errors.WithContext(err, "create session")
	}

	if err := setOpenFilesLimit(); err != nil {
		logrus.WithError(err).Warn("Failed to increase the kernel limit on open files. " +
			"Watching large directories may fail.")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if isTerminal() {
		fmt.Fprintln(stdout, "Type `pause` or `resume` and press Enter to control syncing.")
	}
	go func() {
		defer util.HandlePanic()
		if err := s.Control(stdin, stdout); err != nil {
			logrus.WithError(err).Warn("Stopped reading commands")
		}
	}()

	return s.Run(ctx)
}
