//go:build !linux && !darwin

package mmap

import "os"

func mapFile(*os.File, int) ([]byte, error) {
	return nil, ErrUnsupported
}

func unmap([]byte) error {
	return nil
}
