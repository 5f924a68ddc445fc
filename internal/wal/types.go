package wal

import "encoding/binary"

// ===========================================================================
// WAL FILE FORMAT
//
// Segment file layout:
//   [Segment Header (32 bytes)] [Record 1] [Record 2] ...
//
// Record layout:
//   [Length(4) LSN(8) CRC32(4)] [DBNameLen(2) DBName] [OpCount(4) Ops...]
// Each Op: [KeyLen(4) Key] [ValueLen(4) Value]
//
// All multi-byte integers are little-endian (the wire protocol in
// internal/wire uses big-endian; the two formats are independent).
// ===========================================================================

// ByteOrder is the byte order used for encoding WAL data.
var ByteOrder = binary.LittleEndian

// WALMagic identifies a valid WAL segment file.
var WALMagic = [8]byte{'K', 'V', 'D', 'B', 'W', 'A', 'L', '1'}

// SegmentHeaderSize is the fixed size of a segment file's header.
const SegmentHeaderSize = 32

// RecordHeaderSize is the fixed-size portion preceding the variable body
// of a record (Length + LSN + CRC32).
const RecordHeaderSize = 16

// MaxRecordSize bounds the Length field (the record body, excluding the
// RecordHeaderSize header) that the reader accepts (16MiB), guarding
// recovery against a corrupted Length field causing an unbounded
// allocation.
const MaxRecordSize = 16 * 1024 * 1024

// DefaultMaxSegmentSize is the size at which the WAL rolls to a new
// segment file.
const DefaultMaxSegmentSize = 64 * 1024 * 1024

// KV is a single key/value pair within a WAL entry's op list.
type KV struct {
	Key   []byte
	Value []byte
}

// Entry is one durable WAL record: the set of key/value assignments
// applied as a single atomic batch to one database.
type Entry struct {
	LSN uint64
	DB  string
	Ops []KV
}
