package dbserver

import (
	"context"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/leengari/kvdb/internal/config"
	"github.com/leengari/kvdb/internal/session"
	"github.com/leengari/kvdb/internal/wire"
)

func newSession() *session.Session { return session.New("127.0.0.1:0") }

func newTestContext(t *testing.T) *Context {
	t.Helper()
	cfg := config.Default()
	cfg.DBsRootDir = t.TempDir()
	c := New(cfg)
	assert.NilError(t, c.OpenDatabases(map[string]*config.DBEntry{
		"test": {Name: "test", RootDir: filepath.Join(cfg.DBsRootDir, "test"), Partitions: 1, Enable: true},
	}))
	return c
}

func cmd(name string, params ...string) *wire.Command {
	c := &wire.Command{Name: name}
	for _, p := range params {
		c.Parameters = append(c.Parameters, []byte(p))
	}
	return c
}

func TestProcessCommandNotReadyGatesServicePort(t *testing.T) {
	c := newTestContext(t)
	sess := newSession()

	resp := c.ProcessCommand(context.Background(), sess, false, cmd("GET", "k"))
	assert.Equal(t, resp.Code, wire.CodeError)
	assert.Assert(t, resp.Message != "")

	resp = c.ProcessCommand(context.Background(), sess, false, cmd("CLUSTER_INFO"))
	assert.Equal(t, resp.Code, wire.CodeSuccess)
}

func TestProcessCommandAdminRejectedOnServicePort(t *testing.T) {
	c := newTestContext(t)
	c.SetReady(true)
	sess := newSession()

	resp := c.ProcessCommand(context.Background(), sess, false, cmd("CREATE_DB", "extra"))
	assert.Equal(t, resp.Code, wire.CodeError)

	resp = c.ProcessCommand(context.Background(), sess, true, cmd("CREATE_DB", "extra"))
	assert.Equal(t, resp.Code, wire.CodeSuccess)
}

func TestProcessCommandUseGetPutRoundTrip(t *testing.T) {
	c := newTestContext(t)
	c.SetReady(true)
	sess := newSession()

	resp := c.ProcessCommand(context.Background(), sess, false, cmd("USE", "test"))
	assert.Equal(t, resp.Code, wire.CodeSuccess)

	resp = c.ProcessCommand(context.Background(), sess, false, cmd("PUT", "k", "v"))
	assert.Equal(t, resp.Code, wire.CodeSuccess)

	resp = c.ProcessCommand(context.Background(), sess, false, cmd("GET", "k"))
	assert.Equal(t, resp.Code, wire.CodeSuccess)
	assert.Equal(t, string(resp.Result[0]), "v")
}

func TestRegisterRemoveSessionTracksCount(t *testing.T) {
	c := newTestContext(t)
	sess := newSession()

	assert.Equal(t, c.SessionCount(), 0)
	c.RegisterSession(sess)
	assert.Equal(t, c.SessionCount(), 1)
	c.RemoveSession(sess)
	assert.Equal(t, c.SessionCount(), 0)
}

func TestEnableDisableDBGatesUse(t *testing.T) {
	c := newTestContext(t)
	c.SetReady(true)
	sess := newSession()

	assert.NilError(t, c.DisableDB("test"))
	resp := c.ProcessCommand(context.Background(), sess, false, cmd("USE", "test"))
	assert.Equal(t, resp.Code, wire.CodeError)

	assert.NilError(t, c.EnableDB("test"))
	resp = c.ProcessCommand(context.Background(), sess, false, cmd("USE", "test"))
	assert.Equal(t, resp.Code, wire.CodeSuccess)
}
