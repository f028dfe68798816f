//go:build !linux && !darwin

package fswatch

import "os"

// Renames are paired by path on platforms without inodes.
func inode(os.FileInfo) (uint64, bool) {
	return 0, false
}
