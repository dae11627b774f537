//go:build !linux && !darwin

package persistence

import "errors"

var errMmapUnsupported = errors.New("mmap: not supported on this platform")

func mmapFile(string) ([]byte, func() error, error) {
	return nil, nil, errMmapUnsupported
}
