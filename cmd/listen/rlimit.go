//go:build linux || darwin

package listen

import (
	"syscall"

	"github.com/sidkik/labsync/pkg/errors"
)

// The max file limit is 10240, even though the max returned by Getrlimit is
// 1<<63-1. This is OPEN_MAX in sys/syslimits.h. macOS needs a descriptor for
// every watched directory.
const osxMaxSoftOpenFilesLimit = 10240

func setOpenFilesLimit() error {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		return errors.WithContext(err, "get current limit")
	}

	target := uint64(osxMaxSoftOpenFilesLimit)
	if uint64(rLimit.Max) < target {
		target = uint64(rLimit.Max)
	}
	if uint64(rLimit.Cur) >= target {
		return nil
	}

	rLimit.Cur = target
	return syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
}
