package command

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/leengari/kvdb/internal/kvdberr"
	"github.com/leengari/kvdb/internal/kvstore"
	"github.com/leengari/kvdb/internal/session"
	"github.com/leengari/kvdb/internal/wire"
)

func executeUse(_ context.Context, env Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	if len(cmd.Parameters) != 1 {
		return argError("USE takes exactly one argument, got %d", len(cmd.Parameters))
	}
	name := string(cmd.Parameters[0])
	store, err := env.UseDB(name)
	if err != nil {
		return errorResponse(err)
	}
	sess.SetDB(name, store)
	return successResponse(nil)
}

func isValidDBName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-') {
			return false
		}
	}
	return true
}

func executeCreateDB(_ context.Context, env Env, _ *session.Session, cmd *wire.Command) *wire.Response {
	if len(cmd.Parameters) != 1 {
		return argError("CREATE_DB takes exactly one argument, got %d", len(cmd.Parameters))
	}
	name := string(cmd.Parameters[0])
	if !isValidDBName(name) {
		return errorResponse(kvdberr.New(kvdberr.InvalidName, "invalid database name %q", name))
	}
	if err := env.CreateDB(name); err != nil {
		return errorResponse(err)
	}
	return successResponse(nil)
}

func executeEnableDB(_ context.Context, env Env, _ *session.Session, cmd *wire.Command) *wire.Response {
	if len(cmd.Parameters) != 1 {
		return argError("ENABLE_DB takes exactly one argument, got %d", len(cmd.Parameters))
	}
	if err := env.EnableDB(string(cmd.Parameters[0])); err != nil {
		return errorResponse(err)
	}
	return successResponse(nil)
}

func executeDisableDB(_ context.Context, env Env, _ *session.Session, cmd *wire.Command) *wire.Response {
	if len(cmd.Parameters) != 1 {
		return argError("DISABLE_DB takes exactly one argument, got %d", len(cmd.Parameters))
	}
	if err := env.DisableDB(string(cmd.Parameters[0])); err != nil {
		return errorResponse(err)
	}
	return successResponse(nil)
}

func executeExists(_ context.Context, _ Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	if len(cmd.Parameters) == 0 {
		return argError("EXISTS requires at least one key")
	}
	flags, err := sess.Exists(cmd.Parameters)
	if err != nil {
		return errorResponse(err)
	}
	result := make([][]byte, len(flags))
	for i, present := range flags {
		if present {
			result[i] = []byte{1}
		} else {
			result[i] = []byte{0}
		}
	}
	return successResponse(result)
}

func executeGet(_ context.Context, _ Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	if len(cmd.Parameters) == 0 {
		return argError("GET requires at least one key")
	}
	values, err := sess.Get(cmd.Parameters)
	if err != nil {
		return errorResponse(err)
	}
	return successResponse(values)
}

func executePut(_ context.Context, _ Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	if len(cmd.Parameters) == 0 || len(cmd.Parameters)%2 != 0 {
		return argError("PUT requires a non-zero even number of arguments, got %d", len(cmd.Parameters))
	}
	pairs := make([]kvstore.KV, len(cmd.Parameters)/2)
	for i := range pairs {
		pairs[i] = kvstore.KV{Key: cmd.Parameters[2*i], Value: cmd.Parameters[2*i+1]}
	}
	if err := sess.Put(pairs); err != nil {
		return errorResponse(err)
	}
	return successResponse(nil)
}

func executeBatchBegin(_ context.Context, _ Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	if len(cmd.Parameters) != 0 {
		return argError("BATCH_BEGIN takes no arguments")
	}
	if err := sess.BatchBegin(); err != nil {
		return errorResponse(err)
	}
	return successResponse(nil)
}

func executeBatchAbort(_ context.Context, _ Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	if len(cmd.Parameters) != 0 {
		return argError("BATCH_ABORT takes no arguments")
	}
	if err := sess.BatchAbort(); err != nil {
		return errorResponse(err)
	}
	return successResponse(nil)
}

func executeBatchCommit(_ context.Context, _ Env, sess *session.Session, cmd *wire.Command) *wire.Response {
	expected := sess.BatchSize()
	switch len(cmd.Parameters) {
	case 0:
		// expected_size omitted: commit whatever is currently staged.
	case 1:
		n, err := strconv.Atoi(string(cmd.Parameters[0]))
		if err != nil || n < 0 {
			return argError("BATCH_COMMIT expected_size must be a non-negative integer")
		}
		expected = n
	default:
		return argError("BATCH_COMMIT takes at most one argument, got %d", len(cmd.Parameters))
	}
	if err := sess.BatchCommit(expected); err != nil {
		return errorResponse(err)
	}
	return successResponse(nil)
}

func executeClusterInfo(_ context.Context, env Env, _ *session.Session, cmd *wire.Command) *wire.Response {
	if len(cmd.Parameters) != 0 {
		return argError("CLUSTER_INFO takes no arguments")
	}
	info := env.ClusterInfo()
	names := make([]string, 0, len(info))
	for name := range info {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([][]byte, 0, len(names))
	for _, name := range names {
		entry := name + "=" + strings.Join(info[name], ",")
		result = append(result, []byte(entry))
	}
	return successResponse(result)
}

func executeShowDBs(_ context.Context, env Env, _ *session.Session, cmd *wire.Command) *wire.Response {
	if len(cmd.Parameters) != 0 {
		return argError("SHOW_DBS takes no arguments")
	}
	names := env.ListDBs()
	sort.Strings(names)
	result := make([][]byte, len(names))
	for i, name := range names {
		result[i] = []byte(name)
	}
	return successResponse(result)
}
