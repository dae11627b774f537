//go:build linux || darwin

package persistence

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile maps the file read-only and returns its contents plus an unmap
// function. Empty files are not mapped; callers fall back to regular reads.
func mmapFile(path string) ([]byte, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	size := fi.Size()
	if size == 0 {
		return nil, nil, errors.New("mmap: empty file")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}

	// Snapshot loads read front to back.
	_ = unix.Madvise(data, unix.MADV_SEQUENTIAL)

	return data, func() error { return unix.Munmap(data) }, nil
}
