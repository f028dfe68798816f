package session

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/buger/goterm"

	"github.com/sidkik/labsync/pkg/errors"
)

// Control reads commands from `in`, one per line, until it's exhausted.
// Notices about unrecognized commands are written to `out`.
func (s *Session) Control(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch strings.ToLower(fields[0]) {
		case "pause":
			s.Pause()
		case "resume":
			s.Resume()
		default:
			fmt.Fprintf(out, "Unknown command %q. Type `pause` or `resume`.\n", fields[0])
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.WithContext(err, "read command")
	}
	return nil
}

func clearTerminal() {
	goterm.Clear()
	goterm.MoveCursor(1, 1)
	goterm.Flush()
}
