package wal

import (
	"fmt"
	"hash/crc32"
	"time"
)

// writeSegmentHeader writes the fixed 32-byte segment header: magic (8),
// version (2), created-at unix seconds (8), reserved padding (14).
func writeSegmentHeader(f interface{ Write([]byte) (int, error) }) error {
	buf := make([]byte, SegmentHeaderSize)
	copy(buf[0:8], WALMagic[:])
	ByteOrder.PutUint16(buf[8:10], 1)
	ByteOrder.PutUint64(buf[10:18], uint64(time.Now().Unix()))
	_, err := f.Write(buf)
	return err
}

// Append assigns the next LSN, durably writes an entry covering db and
// ops, and returns the assigned LSN. Append may be called concurrently;
// calls are internally serialized and LSNs are assigned strictly
// monotonically in call order.
func (w *WAL) Append(db string, ops []KV) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	lsn := w.nextLSN
	w.nextLSN++

	payload := encodeEntryBody(db, ops)
	crc := entryCRC(lsn, payload)

	header := make([]byte, RecordHeaderSize)
	ByteOrder.PutUint32(header[0:4], uint32(len(payload)))
	ByteOrder.PutUint64(header[4:12], lsn)
	ByteOrder.PutUint32(header[12:16], crc)

	if _, err := w.segment.Write(header); err != nil {
		return 0, fmt.Errorf("wal: writing record header: %w", err)
	}
	if _, err := w.segment.Write(payload); err != nil {
		return 0, fmt.Errorf("wal: writing record payload: %w", err)
	}
	w.segmentSize += int64(RecordHeaderSize + len(payload))

	if err := durableSync(w.segment); err != nil {
		return 0, fmt.Errorf("wal: fsync: %w", err)
	}

	if w.segmentSize >= w.maxSegmentSize {
		if err := w.roll(); err != nil {
			return 0, err
		}
	}

	return lsn, nil
}

func (w *WAL) roll() error {
	if err := durableSync(w.segment); err != nil {
		return err
	}
	if err := w.segment.Close(); err != nil {
		return err
	}
	return w.openSegment(w.segmentIndex + 1)
}

// entryCRC computes the CRC32 spec.md §4.4 specifies for a record: over
// `lsn || db || ops`. body is the already-encoded db+ops portion
// (encodeEntryBody); lsn is hashed ahead of it without being included in
// the variable-length encoded body itself, so a corrupted on-disk LSN
// field is caught the same as a corrupted body.
func entryCRC(lsn uint64, body []byte) uint32 {
	h := crc32.NewIEEE()
	var lsnBuf [8]byte
	ByteOrder.PutUint64(lsnBuf[:], lsn)
	h.Write(lsnBuf[:])
	h.Write(body)
	return h.Sum32()
}

// encodeEntryBody encodes DB name and ops (excluding the record header).
// Format: DBNameLen(2) DBName OpCount(4) [KeyLen(4) Key ValueLen(4) Value]...
func encodeEntryBody(db string, ops []KV) []byte {
	size := 2 + len(db) + 4
	for _, op := range ops {
		size += 4 + len(op.Key) + 4 + len(op.Value)
	}
	buf := make([]byte, size)
	off := 0

	ByteOrder.PutUint16(buf[off:], uint16(len(db)))
	off += 2
	copy(buf[off:], db)
	off += len(db)

	ByteOrder.PutUint32(buf[off:], uint32(len(ops)))
	off += 4

	for _, op := range ops {
		ByteOrder.PutUint32(buf[off:], uint32(len(op.Key)))
		off += 4
		copy(buf[off:], op.Key)
		off += len(op.Key)

		ByteOrder.PutUint32(buf[off:], uint32(len(op.Value)))
		off += 4
		copy(buf[off:], op.Value)
		off += len(op.Value)
	}
	return buf
}
