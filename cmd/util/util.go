package util

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/labsync/pkg/errors"
)

// Mocked out for unit testing.
var (
	exit             = os.Exit
	stderr io.Writer = os.Stderr
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
)

// HandleFatalError handles errors that are severe enough to terminate the
// program. Errors with a friendly message are printed as is. Other errors are
// logged along with their context.
func HandleFatalError(err error) {
	if msg, ok := errors.GetFriendlyMessage(err); ok {
		fmt.Fprintln(stderr, msg)
	} else {
		log.WithError(err).Error("Fatal error")
	}
	exit(1)
}

// HandlePanic logs panics before exiting. It must be deferred.
func HandlePanic() {
	if r := recover(); r != nil {
		log.Errorf("Unexpected panic: %v\n%s", r, debug.Stack())
		exit(1)
	}
}

// PromptYesOrNo asks the user a yes or no question. Anything other than an
// explicit yes is treated as no.
func PromptYesOrNo(prompt string) (bool, error) {
	fmt.Fprintf(stdout, "%s [y/N] ", prompt)
	answer, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, errors.WithContext(err, "read answer")
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
