package fswatch

import "fmt"

// Op is the kind of change an Event describes.
type Op int

const (
	// Created is sent when a file or directory appears.
	Created Op = iota + 1

	// Modified is sent when a file's contents or attributes change.
	Modified

	// Deleted is sent when a file or directory is removed, or renamed to a
	// location outside of the watched tree.
	Deleted

	// Moved is sent when a file or directory is renamed within the watched
	// tree.
	Moved
)

func (op Op) String() string {
	switch op {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Moved:
		return "moved"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// Event is a change to a path in the watched tree. Paths are absolute.
type Event struct {
	Op    Op
	IsDir bool
	Path  string

	// DestPath is the new location of a Moved path.
	DestPath string
}
