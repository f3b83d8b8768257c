package netcore

import (
	"os"

	"golang.org/x/sys/unix"
)

// GetMaxOpenFiles reads the process open-file limit.
func GetMaxOpenFiles() (*unix.Rlimit, error) {
	limit := &unix.Rlimit{}
	err := unix.Getrlimit(unix.RLIMIT_NOFILE, limit)
	if err != nil {
		return nil, os.NewSyscallError("getrlimit", err)
	}
	return limit, nil
}

// SetMaxOpenFiles raises (or lowers) the process open-file limit.
func SetMaxOpenFiles(cur, max uint64) error {
	err := unix.Setrlimit(unix.RLIMIT_NOFILE, &unix.Rlimit{
		Cur: cur,
		Max: max,
	})
	if err != nil {
		return os.NewSyscallError("setrlimit", err)
	}
	return nil
}
