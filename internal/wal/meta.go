package wal

import (
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
)

const metaFileSize = 12 // uint64 LSN + uint32 CRC32

func metaPath(dir string) string {
	return filepath.Join(dir, "wal.meta")
}

// readMeta returns the last durable LSN recorded in wal.meta, or 0 if no
// meta file exists yet.
func readMeta(dir string) (uint64, error) {
	path := metaPath(dir)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("wal: reading meta: %w", err)
	}
	if len(data) != metaFileSize {
		return 0, fmt.Errorf("wal: corrupt meta file: unexpected size %d", len(data))
	}
	lsn := ByteOrder.Uint64(data[0:8])
	crc := ByteOrder.Uint32(data[8:12])
	if crc32.ChecksumIEEE(data[0:8]) != crc {
		return 0, fmt.Errorf("wal: corrupt meta file: CRC mismatch")
	}
	return lsn, nil
}

// writeMeta atomically rewrites wal.meta to record lsn: write to a temp
// file in the same directory, fsync it, rename over the target, then
// fsync the parent directory so the rename itself is durable.
func writeMeta(dir string, lsn uint64) error {
	buf := make([]byte, metaFileSize)
	ByteOrder.PutUint64(buf[0:8], lsn)
	ByteOrder.PutUint32(buf[8:12], crc32.ChecksumIEEE(buf[0:8]))

	tmpPath := metaPath(dir) + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("wal: creating meta temp file: %w", err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("wal: writing meta temp file: %w", err)
	}
	if err := durableSync(f); err != nil {
		f.Close()
		return fmt.Errorf("wal: fsync meta temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, metaPath(dir)); err != nil {
		return fmt.Errorf("wal: renaming meta file: %w", err)
	}

	if dirFile, err := os.Open(dir); err == nil {
		_ = dirFile.Sync()
		dirFile.Close()
	}
	return nil
}
