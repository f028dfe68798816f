// Package remote runs file operations against the servers that labsync
// mirrors to.
package remote

import (
	"fmt"
	"strings"

	"github.com/sidkik/labsync/pkg/config"
	"github.com/sidkik/labsync/pkg/errors"
)

// ErrUnsupported is returned by executors that can't perform an operation.
var ErrUnsupported = errors.New("operation not supported by this executor")

// Executor performs file operations on a remote destination. All paths are
// root-relative and use forward slashes. Implementations must be safe for
// concurrent use, since every destination's worker shares one executor.
type Executor interface {
	// Upload copies the local `paths`, which all share the parent `dir`, into
	// the remote counterpart of `dir`. Directories are copied recursively.
	Upload(dst config.Destination, dir string, paths []string) error

	// MakeDirectory creates the remote counterpart of `dir`, including any
	// missing parents.
	MakeDirectory(dst config.Destination, dir string) error

	// Move renames the remote counterpart of `src` to that of `dest`. It
	// returns a MissingSourceError if `src` doesn't exist remotely.
	Move(dst config.Destination, src, dest string) error
}

// MissingDirectoryError is returned by Upload when the remote parent
// directory doesn't exist yet.
type MissingDirectoryError struct {
	Destination string
	Dir         string
}

func (err MissingDirectoryError) Error() string {
	return fmt.Sprintf("remote directory %q does not exist on %s", err.Dir, err.Destination)
}

// MissingSourceError is returned by Move when the remote path to rename
// doesn't exist. This happens when a temporary file is renamed before it was
// ever uploaded.
type MissingSourceError struct {
	Destination string
	Path        string
}

func (err MissingSourceError) Error() string {
	return fmt.Sprintf("remote path %q does not exist on %s", err.Path, err.Destination)
}

// CommandError is returned when a remote command exits with an error.
type CommandError struct {
	Command string
	Output  string
	Err     error
}

func (err CommandError) Error() string {
	output := strings.TrimSpace(err.Output)
	if output == "" {
		return fmt.Sprintf("%s: %s", err.Command, err.Err)
	}
	return fmt.Sprintf("%s: %s: %s", err.Command, err.Err, output)
}

func (err CommandError) Unwrap() error {
	return err.Err
}
