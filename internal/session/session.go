// Package session implements the per-connection state machine: the
// current database binding, and the batch-mode buffer a session owns
// exclusively until it commits or aborts.
package session

import (
	"github.com/google/uuid"

	"github.com/leengari/kvdb/internal/kvdberr"
	"github.com/leengari/kvdb/internal/kvstore"
)

// MaxBatchSize bounds the number of distinct keys a batch buffer may
// hold, enforced both per Put call and cumulatively.
const MaxBatchSize = 10_000_000

// State is one of the three states in the session lifecycle diagram.
type State int

const (
	StateInit State = iota
	StateBound
	StateBatching
)

// BoundStore is the subset of a bound database a session needs: reads
// fall through to the engine, and writes go through the owning
// database's WAL-then-engine critical section as a single atomic unit.
type BoundStore interface {
	Get(key []byte) (value []byte, ok bool, err error)
	Write(ops []kvstore.KV) error
}

// Session holds the state for one connected client. A Session is owned
// exclusively by the worker currently dispatching its commands; it is
// not safe for concurrent use by multiple goroutines at once, matching
// the single-reader-per-connection ordering guarantee.
type Session struct {
	ID        string
	SourceKey string

	state  State
	dbName string
	db     BoundStore
	batch  map[string][]byte
}

// New creates a session for a newly accepted connection, identified by
// its source address (host:port).
func New(sourceKey string) *Session {
	return &Session{
		ID:        uuid.New().String(),
		SourceKey: sourceKey,
		state:     StateInit,
	}
}

// State reports the session's current lifecycle state.
func (s *Session) State() State { return s.state }

// CurrentDB returns the name of the bound database, or "" if unbound.
func (s *Session) CurrentDB() string { return s.dbName }

// BatchSize reports the number of distinct keys currently staged in the
// batch buffer. It is 0 outside BATCHING.
func (s *Session) BatchSize() int { return len(s.batch) }

// SetDB aborts any active batch (idempotent) and binds the session to
// the named database and its store.
func (s *Session) SetDB(name string, db BoundStore) {
	s.clearBatch()
	s.state = StateBound
	s.dbName = name
	s.db = db
}

// BatchBegin is idempotent: it transitions to (or remains in) BATCHING
// and clears the buffer.
func (s *Session) BatchBegin() error {
	if s.state == StateInit {
		return kvdberr.New(kvdberr.BatchState, "no database selected")
	}
	s.clearBatch()
	s.state = StateBatching
	return nil
}

// BatchAbort is idempotent: it transitions to BOUND and clears the
// buffer.
func (s *Session) BatchAbort() error {
	if s.state == StateInit {
		return kvdberr.New(kvdberr.BatchState, "no database selected")
	}
	s.clearBatch()
	s.state = StateBound
	return nil
}

func (s *Session) clearBatch() {
	s.batch = nil
}

// Put applies key/value pairs. In BATCHING state they are staged into
// the session-private buffer (last-write-wins per key, a single map
// insertion per call). In BOUND state they are applied immediately
// through the bound database's WAL-then-engine write path.
func (s *Session) Put(pairs []kvstore.KV) error {
	switch s.state {
	case StateInit:
		return kvdberr.New(kvdberr.BatchState, "no database selected")
	case StateBatching:
		if s.batch == nil {
			s.batch = make(map[string][]byte, len(pairs))
		}
		newKeys := 0
		for _, kv := range pairs {
			if _, exists := s.batch[string(kv.Key)]; !exists {
				newKeys++
			}
		}
		if len(s.batch)+newKeys > MaxBatchSize {
			return kvdberr.New(kvdberr.BatchTooLarge, "batch would exceed %d entries", MaxBatchSize)
		}
		for _, kv := range pairs {
			s.batch[string(kv.Key)] = kv.Value
		}
		return nil
	default: // StateBound
		return s.db.Write(pairs)
	}
}

// BatchCommit requires BATCHING. If the buffer's cardinality does not
// equal expectedSize, it fails with BatchSizeMismatch and the session
// remains in BATCHING. On success the entire buffer is applied as one
// atomic write and the session returns to BOUND.
func (s *Session) BatchCommit(expectedSize int) error {
	if s.state != StateBatching {
		return kvdberr.New(kvdberr.BatchState, "BATCH_COMMIT without BATCH_BEGIN")
	}
	if len(s.batch) != expectedSize {
		return kvdberr.New(kvdberr.BatchSizeMismatch, "expected %d entries, buffer has %d", expectedSize, len(s.batch))
	}

	ops := make([]kvstore.KV, 0, len(s.batch))
	for k, v := range s.batch {
		ops = append(ops, kvstore.KV{Key: []byte(k), Value: v})
	}

	if err := s.db.Write(ops); err != nil {
		return err
	}

	s.clearBatch()
	s.state = StateBound
	return nil
}

// Get resolves keys. In BATCHING state the session-private buffer is
// consulted first (read-your-own-writes), falling through to the engine
// for keys the batch has not touched.
func (s *Session) Get(keys [][]byte) ([][]byte, error) {
	if s.state == StateInit {
		return nil, kvdberr.New(kvdberr.BatchState, "no database selected")
	}
	results := make([][]byte, len(keys))
	for i, k := range keys {
		if s.state == StateBatching {
			if v, ok := s.batch[string(k)]; ok {
				results[i] = v
				continue
			}
		}
		v, ok, err := s.db.Get(k)
		if err != nil {
			return nil, err
		}
		if ok {
			results[i] = v
		}
	}
	return results, nil
}

// Exists reports, per key, whether a value is visible to this session
// (batch buffer first, then the engine).
func (s *Session) Exists(keys [][]byte) ([]bool, error) {
	values, err := s.Get(keys)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(values))
	for i, v := range values {
		out[i] = v != nil
	}
	return out, nil
}
