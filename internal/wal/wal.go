package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// WAL is the append-only redo log shared by every database on the
// server; each entry names the database it belongs to. It owns a
// rolling set of wal.NNN segment files under dir plus a wal.meta file
// recording the last durably committed LSN.
type WAL struct {
	mu  sync.Mutex
	dir string

	segment      *os.File
	segmentIndex int
	segmentSize  int64

	nextLSN        uint64
	lastMetaLSN    uint64
	maxSegmentSize int64
}

// Open opens (creating if necessary) the WAL rooted at dir. If segments
// already exist, the next LSN continues from the highest one found on
// disk; recovery of unflushed state is the caller's responsibility via
// Recover, which is normally invoked once at boot before Open's segment
// is appended to.
func Open(dir string) (*WAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: creating dir %s: %w", dir, err)
	}

	w := &WAL{dir: dir, nextLSN: 1, maxSegmentSize: DefaultMaxSegmentSize}

	segments, err := listSegments(dir)
	if err != nil {
		return nil, err
	}

	if len(segments) == 0 {
		if err := w.openSegment(0); err != nil {
			return nil, err
		}
	} else {
		last := segments[len(segments)-1]
		if err := w.openSegment(last); err != nil {
			return nil, err
		}
		highest, err := w.highestLSNInSegments(segments)
		if err != nil {
			return nil, err
		}
		w.nextLSN = highest + 1
	}

	meta, err := readMeta(dir)
	if err != nil {
		return nil, err
	}
	w.lastMetaLSN = meta

	return w, nil
}

func (w *WAL) highestLSNInSegments(segments []int) (uint64, error) {
	var highest uint64
	for _, idx := range segments {
		r, err := newSegmentReader(segmentPath(w.dir, idx))
		if err != nil {
			return 0, err
		}
		for {
			entry, _, err := r.readEntry()
			if err != nil {
				break
			}
			if entry.LSN > highest {
				highest = entry.LSN
			}
		}
		r.Close()
	}
	return highest, nil
}

func (w *WAL) openSegment(index int) error {
	path := segmentPath(w.dir, index)
	flags := os.O_CREATE | os.O_RDWR
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("wal: opening segment %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	if info.Size() == 0 {
		if err := writeSegmentHeader(f); err != nil {
			f.Close()
			return err
		}
		w.segmentSize = SegmentHeaderSize
	} else {
		w.segmentSize = info.Size()
		if _, err := f.Seek(0, os.SEEK_END); err != nil {
			f.Close()
			return err
		}
	}

	w.segment = f
	w.segmentIndex = index
	return nil
}

// Close fsyncs and closes the active segment.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.segment == nil {
		return nil
	}
	if err := durableSync(w.segment); err != nil {
		return err
	}
	err := w.segment.Close()
	w.segment = nil
	return err
}

// NextLSN returns the LSN that will be assigned to the next Append call.
func (w *WAL) NextLSN() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextLSN
}

// LastMetaLSN returns the last LSN reflected in wal.meta.
func (w *WAL) LastMetaLSN() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastMetaLSN
}

// UpdateMeta durably advances wal.meta to lsn. Meta is strictly
// non-decreasing; a lower value is silently ignored.
func (w *WAL) UpdateMeta(lsn uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if lsn <= w.lastMetaLSN {
		return nil
	}
	if err := writeMeta(w.dir, lsn); err != nil {
		return err
	}
	w.lastMetaLSN = lsn
	return nil
}

func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("wal.%06d", index))
}

func listSegments(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("wal: listing %s: %w", dir, err)
	}
	var indices []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var idx int
		if _, err := fmt.Sscanf(e.Name(), "wal.%06d", &idx); err == nil {
			indices = append(indices, idx)
		}
	}
	for i := 1; i < len(indices); i++ {
		for j := i; j > 0 && indices[j-1] > indices[j]; j-- {
			indices[j-1], indices[j] = indices[j], indices[j-1]
		}
	}
	return indices, nil
}
