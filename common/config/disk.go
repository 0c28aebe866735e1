package config

import (
	"golang.org/x/sys/unix"
)

// DiskFreeBytes reports the bytes available to unprivileged processes on
// the filesystem holding path.
func DiskFreeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize), nil
}
