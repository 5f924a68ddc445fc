package wal

import (
	"errors"
	"fmt"
	"io"

	"github.com/leengari/kvdb/internal/kvstore"
)

// RecoveryResult summarizes what a Recover call did, for startup logging.
type RecoveryResult struct {
	RecordsScanned int
	RecordsApplied int
	LastLSN        uint64
}

// Recover replays every WAL entry whose LSN exceeds the durable meta LSN
// against the database it names, looked up in stores. An entry naming a
// database absent from stores is a fatal recovery error. Recovery is
// idempotent: entries at or below the meta LSN are skipped, and replaying
// an already-applied entry is benign because writes are blind overwrites.
func Recover(dir string, stores map[string]kvstore.Store) (*RecoveryResult, error) {
	metaLSN, err := readMeta(dir)
	if err != nil {
		return nil, err
	}

	segments, err := listSegments(dir)
	if err != nil {
		return nil, err
	}

	result := &RecoveryResult{LastLSN: metaLSN}

	for _, idx := range segments {
		corrupt, err := replaySegment(segmentPath(dir, idx), stores, &metaLSN, result)
		if err != nil {
			return result, err
		}
		if corrupt {
			// A corrupt CRC truncates the log at that offset: anything
			// after it, including later segments, is discarded.
			break
		}
	}

	if result.LastLSN > 0 {
		if err := writeMeta(dir, result.LastLSN); err != nil {
			return result, err
		}
	}

	return result, nil
}

// replaySegment replays one segment's entries. It returns corrupt == true
// when the segment ends on a CRC/structural error rather than a clean EOF,
// signalling the caller to stop scanning further segments.
func replaySegment(path string, stores map[string]kvstore.Store, metaLSN *uint64, result *RecoveryResult) (corrupt bool, err error) {
	r, err := newSegmentReader(path)
	if err != nil {
		return false, err
	}
	defer r.Close()

	for {
		entry, _, err := r.readEntry()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return true, nil
		}
		result.RecordsScanned++

		if entry.LSN <= *metaLSN {
			continue
		}

		store, ok := stores[entry.DB]
		if !ok {
			return false, fmt.Errorf("wal: recovery found entry for unknown database %q at lsn %d", entry.DB, entry.LSN)
		}

		batch := store.BeginBatch()
		for _, op := range entry.Ops {
			batch.Set(op.Key, op.Value)
		}
		if err := batch.Commit(); err != nil {
			return false, fmt.Errorf("wal: replaying lsn %d against %q: %w", entry.LSN, entry.DB, err)
		}

		result.RecordsApplied++
		result.LastLSN = entry.LSN
		*metaLSN = entry.LSN
	}
}
