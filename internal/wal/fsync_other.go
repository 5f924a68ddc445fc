//go:build !linux

package wal

import "os"

// durableSync flushes file to stable storage using the portable fsync.
func durableSync(file *os.File) error {
	return file.Sync()
}
