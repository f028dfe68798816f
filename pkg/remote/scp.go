package remote

import (
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/labsync/pkg/config"
	"github.com/sidkik/labsync/pkg/errors"
)

const missingFileOutput = "No such file or directory"

// missingSourceOutput is printed by the remote rename script when there's
// nothing to rename.
const missingSourceOutput = "labsync: rename source does not exist"

// Mocked out for unit testing.
var (
	fs = afero.NewOsFs()

	runCommand = func(name string, args ...string) ([]byte, error) {
		return exec.Command(name, args...).CombinedOutput()
	}
)

// SCP executes operations with the system's `scp` and `ssh` binaries, so it
// picks up the user's ssh config and agent.
type SCP struct {
	localRoot string
	log       logrus.FieldLogger
}

// NewSCP returns an executor that resolves root-relative paths against
// `localRoot`.
func NewSCP(localRoot string, log logrus.FieldLogger) *SCP {
	return &SCP{localRoot: localRoot, log: log}
}

// Upload copies `paths` with a single scp invocation.
func (s *SCP) Upload(dst config.Destination, dir string, paths []string) error {
	var locals []string
	var recursive bool
	for _, p := range paths {
		local := filepath.Join(s.localRoot, filepath.FromSlash(p))

		// Temporary files, such as the ones written by editors, are often
		// removed before we get to them.
		fi, err := fs.Stat(local)
		if err != nil {
			if os.IsNotExist(err) {
				s.log.WithField("path", p).Debug("Skipping upload of file that no longer exists")
				continue
			}
			return errors.WithContext(err, "stat")
		}
		recursive = recursive || fi.IsDir()
		locals = append(locals, local)
	}
	if len(locals) == 0 {
		return nil
	}

	args := connectionArgs(dst, "-P")
	if recursive {
		args = append(args, "-r")
	}
	args = append(args, locals...)

	remoteDir := dst.RemotePath(dir)
	args = append(args, fmt.Sprintf("%s:%s", dst.Address(), remoteDir))
	out, err := runCommand("scp", args...)
	if err == nil {
		return nil
	}

	if output := string(out); strings.Contains(output, missingFileOutput) &&
		strings.Contains(output, remoteDir) {
		return MissingDirectoryError{Destination: dst.Name, Dir: dir}
	}
	return CommandError{Command: "scp", Output: string(out), Err: err}
}

// MakeDirectory runs `mkdir -p` on the remote host.
func (s *SCP) MakeDirectory(dst config.Destination, dir string) error {
	return s.ssh(dst, "mkdir -p "+shellQuote(dst.RemotePath(dir)))
}

// Move renames the remote path, creating the destination's parent directory
// first if needed.
func (s *SCP) Move(dst config.Destination, src, dest string) error {
	remoteSrc := shellQuote(dst.RemotePath(src))
	remoteDest := dst.RemotePath(dest)
	script := fmt.Sprintf("test -e %s || { echo %s >&2; exit 1; }; mkdir -p %s && mv -f %s %s",
		remoteSrc, shellQuote(missingSourceOutput),
		shellQuote(path.Dir(remoteDest)),
		remoteSrc, shellQuote(remoteDest))

	err := s.ssh(dst, script)
	var cmdErr CommandError
	if errors.As(err, &cmdErr) && strings.Contains(cmdErr.Output, missingSourceOutput) {
		return MissingSourceError{Destination: dst.Name, Path: src}
	}
	return err
}

func (s *SCP) ssh(dst config.Destination, script string) error {
	args := append(connectionArgs(dst, "-p"), dst.Address(), script)
	out, err := runCommand("ssh", args...)
	if err != nil {
		return CommandError{Command: "ssh", Output: string(out), Err: err}
	}
	return nil
}

// connectionArgs returns the flags shared by scp and ssh. They only differ in
// the name of the port flag.
func connectionArgs(dst config.Destination, portFlag string) (args []string) {
	if dst.Jump != "" {
		args = append(args, "-J", dst.Jump)
	}
	if dst.Port != 0 {
		args = append(args, portFlag, strconv.Itoa(dst.Port))
	}
	return args
}

// shellQuote quotes `s` so that the remote shell treats it as a single word.
func shellQuote(s string) string {
	return "'" + strings.Replace(s, "'", `'\''`, -1) + "'"
}
