// Package command holds the static command_name → Executor table the
// network server dispatches every decoded wire.Command through. There is
// no reflection-based discovery: every command is registered explicitly
// by name, matching the closed set in the protocol document.
package command

import (
	"context"

	"github.com/leengari/kvdb/internal/kvdberr"
	"github.com/leengari/kvdb/internal/session"
	"github.com/leengari/kvdb/internal/wire"
)

// Env is the server-level surface an executor needs beyond the session it
// is dispatched against: database lifecycle and cluster introspection.
// dbserver.Context implements this; command never imports dbserver, so the
// dependency only runs one way.
type Env interface {
	UseDB(name string) (session.BoundStore, error)
	CreateDB(name string) error
	EnableDB(name string) error
	DisableDB(name string) error
	ListDBs() []string
	ClusterInfo() map[string][]string
}

// Executor handles one decoded command against a session and the server
// environment, producing the response to send back.
type Executor func(ctx context.Context, env Env, sess *session.Session, cmd *wire.Command) *wire.Response

type registration struct {
	exec Executor
	open bool
}

// Registry is the static command table. It is built once at startup by
// NewRegistry and never mutated afterward, so lookups need no locking.
type Registry struct {
	commands map[string]registration
}

// NewRegistry builds the fixed table of the twelve supported commands.
func NewRegistry() *Registry {
	r := &Registry{commands: make(map[string]registration)}
	r.Register("USE", true, executeUse)
	r.Register("CREATE_DB", false, executeCreateDB)
	r.Register("ENABLE_DB", false, executeEnableDB)
	r.Register("DISABLE_DB", false, executeDisableDB)
	r.Register("EXISTS", true, executeExists)
	r.Register("GET", true, executeGet)
	r.Register("PUT", true, executePut)
	r.Register("BATCH_BEGIN", true, executeBatchBegin)
	r.Register("BATCH_ABORT", true, executeBatchAbort)
	r.Register("BATCH_COMMIT", true, executeBatchCommit)
	r.Register("CLUSTER_INFO", true, executeClusterInfo)
	r.Register("SHOW_DBS", false, executeShowDBs)
	return r
}

// Register adds a command to the table. open reports whether the command
// may run on the service port at all; admin-only commands pass open=false
// and are accepted only on the manager port. Before the server reaches
// ready=true the service port admits only CLUSTER_INFO, whatever this flag
// says.
func (r *Registry) Register(name string, open bool, exec Executor) {
	r.commands[name] = registration{exec: exec, open: open}
}

// Lookup returns the executor for name, or nil, false if unregistered.
func (r *Registry) Lookup(name string) (Executor, bool) {
	reg, ok := r.commands[name]
	if !ok {
		return nil, false
	}
	return reg.exec, true
}

// IsOpen reports whether name is registered and flagged open. An unknown
// command is never open.
func (r *Registry) IsOpen(name string) bool {
	reg, ok := r.commands[name]
	return ok && reg.open
}

func errorResponse(err error) *wire.Response {
	return &wire.Response{Code: wire.CodeError, Message: err.Error()}
}

func successResponse(result [][]byte) *wire.Response {
	return &wire.Response{Code: wire.CodeSuccess, Result: result}
}

func argError(format string, args ...any) *wire.Response {
	return errorResponse(kvdberr.New(kvdberr.ArgInvalid, format, args...))
}
