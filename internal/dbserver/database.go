package dbserver

import (
	"sync"

	"github.com/leengari/kvdb/internal/kvdberr"
	"github.com/leengari/kvdb/internal/kvstore"
	"github.com/leengari/kvdb/internal/metrics"
	"github.com/leengari/kvdb/internal/wal"
)

// Database pairs one engine store with the single WAL shared by every
// database the server has open (spec.md §5/§6: one WAL, appends tagged
// with the originating database's name). Every write — whether a single
// PUT or a whole committed batch — goes through this database's own
// mutex so its WAL-append and engine-commit pair applies as one atomic
// step relative to every other writer on this store; LSN assignment
// itself is serialized across all databases inside the shared *wal.WAL.
type Database struct {
	Name string

	mu    sync.Mutex
	store kvstore.Store
	log   *wal.WAL

	enabled bool
	fatal   func(kind kvdberr.Kind, err error)
}

// NewDatabase pairs an already-open store with the shared WAL every
// database in the server appends to.
func NewDatabase(name string, store kvstore.Store, log *wal.WAL, enabled bool) *Database {
	return &Database{Name: name, store: store, log: log, enabled: enabled}
}

// SetFatalHandler installs the callback invoked when a write fails after
// its WAL append or engine commit step, per spec.md §7: durability cannot
// be confirmed for such a failure, so the process is expected to exit and
// let WAL replay resolve state on restart. A nil handler (the default)
// means failures are only returned to the caller, which is adequate for
// tests that don't exercise process-exit behavior.
func (d *Database) SetFatalHandler(f func(kind kvdberr.Kind, err error)) {
	d.fatal = f
}

// Get reads a single key directly from the engine; reads never take the
// write mutex.
func (d *Database) Get(key []byte) ([]byte, bool, error) {
	return d.store.Get(key)
}

// Write appends ops as one WAL record, fsyncs it, applies the batch to
// the engine, and advances the durable meta LSN — all under the
// database's single write mutex, so no other writer observes a partial
// application. A failure here is propagated as an ENGINE or WAL error,
// which spec.md treats as fatal to the process: durability cannot be
// confirmed, so the process exits and WAL replay resolves the state on
// restart.
func (d *Database) Write(ops []kvstore.KV) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	walTimer := metrics.NewTimer()
	lsn, err := d.log.Append(d.Name, toWALOps(ops))
	walTimer.ObserveDuration(metrics.WALAppendDuration)
	if err != nil {
		return d.fatalf(kvdberr.WAL, "appending to wal: %v", err)
	}

	commitTimer := metrics.NewTimer()
	batch := d.store.BeginBatch()
	for _, op := range ops {
		batch.Set(op.Key, op.Value)
	}
	if err := batch.Commit(); err != nil {
		return d.fatalf(kvdberr.Engine, "committing to engine: %v", err)
	}
	commitTimer.ObserveDuration(metrics.EngineCommitDuration)

	if err := d.log.UpdateMeta(lsn); err != nil {
		return d.fatalf(kvdberr.WAL, "advancing wal checkpoint: %v", err)
	}
	return nil
}

// fatalf wraps err as a kvdberr.Error of kind and, if a fatal handler is
// installed, invokes it before returning — the caller still gets a
// response-worthy error to surface on this request, while the handler
// is where the process-exit decision lives (cmd/kvdbd wires it to
// os.Exit so a restart replays the WAL).
func (d *Database) fatalf(kind kvdberr.Kind, format string, args ...any) error {
	wrapped := kvdberr.New(kind, format, args...)
	if d.fatal != nil {
		d.fatal(kind, wrapped)
	}
	return wrapped
}

func toWALOps(ops []kvstore.KV) []wal.KV {
	out := make([]wal.KV, len(ops))
	for i, op := range ops {
		out[i] = wal.KV{Key: op.Key, Value: op.Value}
	}
	return out
}

// Close releases the database's store. The WAL is shared across every
// database in the server and is closed once by Context.CloseAll, not
// here.
func (d *Database) Close() error {
	return d.store.Close()
}
