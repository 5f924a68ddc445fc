// Package dbserver wires together every database's store, the single WAL
// they all share, the executor registry, and the live session set into
// the single object the network layer dispatches decoded commands
// through.
package dbserver

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/leengari/kvdb/internal/command"
	"github.com/leengari/kvdb/internal/config"
	"github.com/leengari/kvdb/internal/kvdberr"
	"github.com/leengari/kvdb/internal/kvstore"
	"github.com/leengari/kvdb/internal/metrics"
	"github.com/leengari/kvdb/internal/session"
	"github.com/leengari/kvdb/internal/telemetry"
	"github.com/leengari/kvdb/internal/wal"
	"github.com/leengari/kvdb/internal/wire"
)

// Context is the server's full in-memory state: every open database, the
// command registry, and the cluster-readiness gate. A single Context is
// shared by every connection's worker goroutine.
type Context struct {
	cfg      config.Config
	registry *command.Registry

	mu        sync.RWMutex
	databases map[string]*Database

	walMu     sync.Mutex
	sharedWAL *wal.WAL

	sessionsMu sync.RWMutex
	sessions   map[string]*session.Session

	clusterMu sync.RWMutex
	cluster   map[string][]string

	ready atomic.Bool
	fatal func(kind kvdberr.Kind, err error)
}

// SetFatalHandler installs the callback every open (and subsequently
// opened, via CreateDB) database's write path invokes when a WAL append
// or engine commit fails mid-write. spec.md §7 treats such a failure as
// fatal to the process; cmd/kvdbd wires this to log the error and exit
// so the next boot's WAL recovery resolves the database's state. Must be
// called before OpenDatabases/CreateDB for it to take effect on their
// Database instances.
func (c *Context) SetFatalHandler(f func(kind kvdberr.Kind, err error)) {
	c.fatal = f
}

// New builds an empty server context. Databases are added with OpenDatabases.
func New(cfg config.Config) *Context {
	return &Context{
		cfg:       cfg,
		registry:  command.NewRegistry(),
		databases: make(map[string]*Database),
		sessions:  make(map[string]*session.Session),
		cluster:   make(map[string][]string),
	}
}

// RegisterSession adds sess to the live session table, keyed by its
// source address. Called once per accepted connection, before the first
// command is dispatched against it.
func (c *Context) RegisterSession(sess *session.Session) {
	c.sessionsMu.Lock()
	defer c.sessionsMu.Unlock()
	c.sessions[sess.SourceKey] = sess
}

// RemoveSession drops sess from the live session table on disconnect.
func (c *Context) RemoveSession(sess *session.Session) {
	c.sessionsMu.Lock()
	defer c.sessionsMu.Unlock()
	delete(c.sessions, sess.SourceKey)
}

// SessionCount reports the number of currently connected sessions.
func (c *Context) SessionCount() int {
	c.sessionsMu.RLock()
	defer c.sessionsMu.RUnlock()
	return len(c.sessions)
}

// OpenDatabases opens every entry in a parsed system/dblist against the
// single WAL shared by every database (spec.md §6 places wal.NNN/wal.meta
// as one sibling of every <db>/ directory under dbs-rootdir, and spec.md
// §5 explains per-DB LSN monotonicity as holding "because there is one
// WAL"), then replays the WAL's unflushed tail against whichever of these
// stores each entry names before admitting any traffic. A recovery
// failure here is fatal (exit code 3 at the call site in cmd/kvdbd).
func (c *Context) OpenDatabases(entries map[string]*config.DBEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sharedWAL, err := c.ensureWAL()
	if err != nil {
		return &EngineOpenError{DB: "*wal*", Err: err}
	}

	stores := make(map[string]kvstore.Store, len(entries))
	opened := make([]kvstore.Store, 0, len(entries))
	defer func() {
		// Only reached on an error return; on success the stores live on
		// inside the Database values installed into c.databases below.
		if len(opened) > 0 {
			for _, s := range opened {
				s.Close()
			}
		}
	}()

	for _, entry := range entries {
		storeDir := filepath.Join(entry.RootDir, "store")
		store, err := kvstore.Open(storeDir, entry.Partitions)
		if err != nil {
			return &EngineOpenError{DB: entry.Name, Err: err}
		}
		opened = append(opened, store)
		stores[entry.Name] = store
	}

	if _, err := wal.Recover(c.walDir(), stores); err != nil {
		return &RecoveryError{DB: "*wal*", Err: err}
	}

	for _, entry := range entries {
		c.databases[entry.Name] = c.newDatabase(entry.Name, stores[entry.Name], sharedWAL, entry.Enable)
	}
	opened = nil
	return nil
}

// EngineOpenError wraps a failure to open a database's underlying store,
// or the shared WAL itself, distinct from a RecoveryError so cmd/kvdbd
// can map each to its own exit code (4 and 3 respectively, spec.md §6).
type EngineOpenError struct {
	DB  string
	Err error
}

func (e *EngineOpenError) Error() string { return fmt.Sprintf("opening database %q: %v", e.DB, e.Err) }
func (e *EngineOpenError) Unwrap() error { return e.Err }

// RecoveryError wraps a failed replay of the shared WAL against the
// database(s) it names.
type RecoveryError struct {
	DB  string
	Err error
}

func (e *RecoveryError) Error() string { return fmt.Sprintf("recovering database %q: %v", e.DB, e.Err) }
func (e *RecoveryError) Unwrap() error { return e.Err }

// walDir is the single WAL's directory, a sibling of every <db>/
// directory under the configured databases root (spec.md §6).
func (c *Context) walDir() string {
	return filepath.Join(c.cfg.DBsRootDir, "wal")
}

// ensureWAL opens the shared WAL the first time it's needed (at boot via
// OpenDatabases, or from CreateDB if a database is created before any
// were loaded) and returns the same instance on every subsequent call.
func (c *Context) ensureWAL() (*wal.WAL, error) {
	c.walMu.Lock()
	defer c.walMu.Unlock()
	if c.sharedWAL != nil {
		return c.sharedWAL, nil
	}
	w, err := wal.Open(c.walDir())
	if err != nil {
		return nil, err
	}
	c.sharedWAL = w
	return w, nil
}

func (c *Context) newDatabase(name string, store kvstore.Store, log *wal.WAL, enabled bool) *Database {
	db := NewDatabase(name, store, log, enabled)
	if c.fatal != nil {
		db.SetFatalHandler(c.fatal)
	}
	return db
}

// SetCluster installs the cluster descriptor loaded from cluster.conf.
func (c *Context) SetCluster(peers map[string][]string) {
	c.clusterMu.Lock()
	defer c.clusterMu.Unlock()
	c.cluster = peers
}

// SetReady flips the cluster-readiness gate. Once true, the service port
// admits every command; until then only CLUSTER_INFO is admitted.
func (c *Context) SetReady(ready bool) {
	c.ready.Store(ready)
	if ready {
		metrics.ClusterReady.Set(1)
	} else {
		metrics.ClusterReady.Set(0)
	}
}

// Ready reports the current readiness gate state.
func (c *Context) Ready() bool { return c.ready.Load() }

// CloseAll closes every open database's store, then the shared WAL they
// all write through, returning the first error encountered.
func (c *Context) CloseAll() error {
	c.mu.RLock()
	var firstErr error
	for _, db := range c.databases {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.mu.RUnlock()

	c.walMu.Lock()
	defer c.walMu.Unlock()
	if c.sharedWAL != nil {
		if err := c.sharedWAL.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// --- command.Env ---

func (c *Context) UseDB(name string) (session.BoundStore, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	db, ok := c.databases[name]
	if !ok || !db.enabled {
		return nil, kvdberr.New(kvdberr.NoSuchDB, "no such database %q", name)
	}
	return db, nil
}

func (c *Context) CreateDB(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.databases[name]; ok {
		return kvdberr.New(kvdberr.DBExists, "database %q already exists", name)
	}
	sharedWAL, err := c.ensureWAL()
	if err != nil {
		return kvdberr.New(kvdberr.Engine, "creating database %q: %v", name, err)
	}
	storeDir := filepath.Join(c.cfg.DBsRootDir, name, "store")
	store, err := kvstore.Open(storeDir, c.cfg.DBsPartitions)
	if err != nil {
		return kvdberr.New(kvdberr.Engine, "creating database %q: %v", name, err)
	}
	c.databases[name] = c.newDatabase(name, store, sharedWAL, true)
	return nil
}

func (c *Context) EnableDB(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	db, ok := c.databases[name]
	if !ok {
		return kvdberr.New(kvdberr.NoSuchDB, "no such database %q", name)
	}
	db.enabled = true
	return nil
}

func (c *Context) DisableDB(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	db, ok := c.databases[name]
	if !ok {
		return kvdberr.New(kvdberr.NoSuchDB, "no such database %q", name)
	}
	db.enabled = false
	return nil
}

func (c *Context) ListDBs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.databases))
	for name, db := range c.databases {
		if db.enabled {
			names = append(names, name)
		}
	}
	return names
}

func (c *Context) ClusterInfo() map[string][]string {
	c.clusterMu.RLock()
	defer c.clusterMu.RUnlock()
	out := make(map[string][]string, len(c.cluster))
	for name, peers := range c.cluster {
		out[name] = append([]string(nil), peers...)
	}
	return out
}

// ProcessCommand resolves and runs the named command against sess. admin
// reports whether the request arrived on the loopback manager port, which
// both lifts the service port's pre-ready gate and permits admin-only
// commands.
func (c *Context) ProcessCommand(ctx context.Context, sess *session.Session, admin bool, cmd *wire.Command) *wire.Response {
	exec, ok := c.registry.Lookup(cmd.Name)
	if !ok {
		return errResponse(kvdberr.New(kvdberr.UnknownCommand, "unknown command %q", cmd.Name))
	}

	open := c.registry.IsOpen(cmd.Name)

	if !admin {
		if !open {
			return errResponse(kvdberr.New(kvdberr.AdminOnly, "%q is an admin-only command", cmd.Name))
		}
		if !c.Ready() && cmd.Name != "CLUSTER_INFO" {
			return errResponse(kvdberr.New(kvdberr.NotReady, "server is not ready"))
		}
	}

	ctx, span := telemetry.StartCommandSpan(ctx, cmd.Name, sess.ID)
	defer span.End()

	timer := metrics.NewTimer()
	resp := exec(ctx, c, sess, cmd)
	timer.ObserveDuration(metrics.CommandDuration.WithLabelValues(cmd.Name))

	outcome := "success"
	if resp.Code == wire.CodeError {
		outcome = "error"
		telemetry.RecordError(span, fmt.Errorf("%s", resp.Message))
	}
	metrics.CommandsTotal.WithLabelValues(cmd.Name, outcome).Inc()

	return resp
}

func errResponse(err error) *wire.Response {
	return &wire.Response{Code: wire.CodeError, Message: err.Error()}
}
