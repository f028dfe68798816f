package sync

import (
	"fmt"
	"path"
)

// Kind is the type of operation a Task performs.
type Kind int

const (
	// Upload copies a local file to the remote.
	Upload Kind = iota + 1

	// MakeDirectory creates a remote directory.
	MakeDirectory

	// Move renames a remote path.
	Move
)

func (k Kind) String() string {
	switch k {
	case Upload:
		return "upload"
	case MakeDirectory:
		return "mkdir"
	case Move:
		return "move"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Task is a single remote operation. Tasks are comparable, and two tasks are
// duplicates when they're equal.
type Task struct {
	Kind Kind

	// Path is the root-relative target of Upload and MakeDirectory tasks.
	Path string

	// SourcePath and DestPath are only set for Move tasks.
	SourcePath string
	DestPath   string
}

// NewUpload returns a task that uploads `path`.
func NewUpload(path string) Task {
	return Task{Kind: Upload, Path: path}
}

// NewMakeDirectory returns a task that creates the directory `path`.
func NewMakeDirectory(path string) Task {
	return Task{Kind: MakeDirectory, Path: path}
}

// NewMove returns a task that renames `src` to `dest`.
func NewMove(src, dest string) Task {
	return Task{Kind: Move, SourcePath: src, DestPath: dest}
}

func (t Task) String() string {
	if t.Kind == Move {
		return fmt.Sprintf("%s %s -> %s", t.Kind, t.SourcePath, t.DestPath)
	}
	return fmt.Sprintf("%s %s", t.Kind, t.Path)
}

// parent returns the directory containing the task's target.
func (t Task) parent() string {
	return path.Dir(t.Path)
}
