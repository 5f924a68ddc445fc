package wal

import (
	"fmt"
	"io"
	"os"
)

// segmentReader reads entries sequentially from one segment file,
// starting after its header.
type segmentReader struct {
	file *os.File
}

func newSegmentReader(path string) (*segmentReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wal: opening segment %s: %w", path, err)
	}
	header := make([]byte, SegmentHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: reading segment header %s: %w", path, err)
	}
	var magic [8]byte
	copy(magic[:], header[0:8])
	if magic != WALMagic {
		f.Close()
		return nil, fmt.Errorf("wal: bad magic in segment %s", path)
	}
	return &segmentReader{file: f}, nil
}

func (r *segmentReader) Close() error {
	return r.file.Close()
}

// readEntry reads the next record. It returns io.EOF at a clean end of
// file. A corrupt CRC or a header implying a record past MaxRecordSize is
// reported as an error; the caller must treat anything at or after that
// point as discarded (the log is truncated there).
func (r *segmentReader) readEntry() (Entry, int, error) {
	header := make([]byte, RecordHeaderSize)
	n, err := io.ReadFull(r.file, header)
	if err == io.EOF {
		return Entry{}, 0, io.EOF
	}
	if err == io.ErrUnexpectedEOF {
		return Entry{}, 0, fmt.Errorf("wal: truncated record header (%d bytes)", n)
	}
	if err != nil {
		return Entry{}, 0, err
	}

	length := ByteOrder.Uint32(header[0:4])
	lsn := ByteOrder.Uint64(header[4:12])
	crc := ByteOrder.Uint32(header[12:16])

	if length > MaxRecordSize {
		return Entry{}, 0, fmt.Errorf("wal: record length %d exceeds max %d (corruption)", length, MaxRecordSize)
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r.file, payload); err != nil {
			return Entry{}, 0, fmt.Errorf("wal: truncated record payload: %w", err)
		}
	}

	if actual := entryCRC(lsn, payload); actual != crc {
		return Entry{}, 0, fmt.Errorf("wal: CRC mismatch at LSN %d: expected %08x got %08x", lsn, crc, actual)
	}

	entry, err := decodeEntryBody(lsn, payload)
	if err != nil {
		return Entry{}, 0, err
	}
	return entry, RecordHeaderSize + int(length), nil
}

func decodeEntryBody(lsn uint64, payload []byte) (Entry, error) {
	off := 0
	if off+2 > len(payload) {
		return Entry{}, fmt.Errorf("wal: truncated db name length")
	}
	dbLen := int(ByteOrder.Uint16(payload[off:]))
	off += 2
	if off+dbLen > len(payload) {
		return Entry{}, fmt.Errorf("wal: truncated db name")
	}
	db := string(payload[off : off+dbLen])
	off += dbLen

	if off+4 > len(payload) {
		return Entry{}, fmt.Errorf("wal: truncated op count")
	}
	count := ByteOrder.Uint32(payload[off:])
	off += 4

	ops := make([]KV, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+4 > len(payload) {
			return Entry{}, fmt.Errorf("wal: truncated key length for op %d", i)
		}
		klen := int(ByteOrder.Uint32(payload[off:]))
		off += 4
		if off+klen > len(payload) {
			return Entry{}, fmt.Errorf("wal: truncated key for op %d", i)
		}
		key := make([]byte, klen)
		copy(key, payload[off:off+klen])
		off += klen

		if off+4 > len(payload) {
			return Entry{}, fmt.Errorf("wal: truncated value length for op %d", i)
		}
		vlen := int(ByteOrder.Uint32(payload[off:]))
		off += 4
		if off+vlen > len(payload) {
			return Entry{}, fmt.Errorf("wal: truncated value for op %d", i)
		}
		value := make([]byte, vlen)
		copy(value, payload[off:off+vlen])
		off += vlen

		ops = append(ops, KV{Key: key, Value: value})
	}

	return Entry{LSN: lsn, DB: db, Ops: ops}, nil
}
