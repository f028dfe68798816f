package sync

import (
	"path"
	"path/filepath"

	"github.com/sidkik/labsync/pkg/errors"
)

// Normalizer converts event paths into root-relative, forward-slash paths.
// It never touches the filesystem.
type Normalizer struct {
	root string
}

// NewNormalizer returns a Normalizer for the directory `root`. Relative roots
// are resolved against the working directory.
func NewNormalizer(root string) (Normalizer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Normalizer{}, errors.WithContext(err, "resolve root")
	}
	return Normalizer{root: abs}, nil
}

// Root returns the absolute path of the watched root.
func (n Normalizer) Root() string {
	return n.root
}

// Normalize returns `p` relative to the root. Relative inputs are assumed to
// already be relative to the root. The root itself normalizes to ".".
// Normalizing a normalized path returns it unchanged.
func (n Normalizer) Normalize(p string) string {
	if filepath.IsAbs(p) {
		if rel, err := filepath.Rel(n.root, p); err == nil {
			p = rel
		}
	}
	return path.Clean(filepath.ToSlash(p))
}
