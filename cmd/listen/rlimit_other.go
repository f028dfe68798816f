//go:build !linux && !darwin

package listen

// Only Linux and macOS need their limit on open files raised.
func setOpenFilesLimit() error {
	return nil
}
