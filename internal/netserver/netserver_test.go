package netserver

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/leengari/kvdb/internal/config"
	"github.com/leengari/kvdb/internal/dbserver"
	"github.com/leengari/kvdb/internal/logging"
	"github.com/leengari/kvdb/internal/wire"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	addr := ln.Addr().String()
	assert.NilError(t, ln.Close())
	return addr
}

func startTestServer(t *testing.T, ready bool) (service, manager string, dbctx *dbserver.Context) {
	t.Helper()
	cfg := config.Default()
	cfg.DBsRootDir = t.TempDir()
	dbctx = dbserver.New(cfg)
	assert.NilError(t, dbctx.OpenDatabases(map[string]*config.DBEntry{
		"test": {Name: "test", RootDir: filepath.Join(cfg.DBsRootDir, "test"), Partitions: 1, Enable: true},
	}))
	dbctx.SetReady(ready)

	logger, _ := logging.SetupLogger("", false)
	service = freeAddr(t)
	manager = freeAddr(t)
	srv := New(dbctx, logger, service, manager, cfg.MaxFrameSize)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.ListenAndServe(ctx)
	time.Sleep(50 * time.Millisecond)
	return service, manager, dbctx
}

func sendCommand(t *testing.T, addr string, cmd *wire.Command) *wire.Response {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	assert.NilError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	req := &wire.Message{ID: 1, Kind: wire.KindRequest, Command: cmd}
	payload, err := wire.Encode(req)
	assert.NilError(t, err)
	assert.NilError(t, wire.WriteFrame(conn, payload))

	fr := wire.NewFrameReader(conn)
	respPayload, err := fr.ReadFrame()
	assert.NilError(t, err)
	respMsg, err := wire.Decode(respPayload)
	assert.NilError(t, err)
	return respMsg.Response
}

func TestServicePortPutGetRoundTrip(t *testing.T) {
	service, _, _ := startTestServer(t, true)

	resp := sendCommand(t, service, &wire.Command{Name: "USE", Parameters: [][]byte{[]byte("test")}})
	assert.Equal(t, resp.Code, wire.CodeSuccess)

	// USE does not persist across new connections, so exercise USE + PUT +
	// GET over one service-port connection that keeps its session.
	conn, err := net.DialTimeout("tcp", service, time.Second)
	assert.NilError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	send := func(id uint64, cmd *wire.Command) *wire.Response {
		req := &wire.Message{ID: id, Kind: wire.KindRequest, Command: cmd}
		payload, err := wire.Encode(req)
		assert.NilError(t, err)
		assert.NilError(t, wire.WriteFrame(conn, payload))
		fr := wire.NewFrameReader(conn)
		respPayload, err := fr.ReadFrame()
		assert.NilError(t, err)
		respMsg, err := wire.Decode(respPayload)
		assert.NilError(t, err)
		return respMsg.Response
	}

	r := send(1, &wire.Command{Name: "USE", Parameters: [][]byte{[]byte("test")}})
	assert.Equal(t, r.Code, wire.CodeSuccess)
	r = send(2, &wire.Command{Name: "PUT", Parameters: [][]byte{[]byte("k"), []byte("v")}})
	assert.Equal(t, r.Code, wire.CodeSuccess)
	r = send(3, &wire.Command{Name: "GET", Parameters: [][]byte{[]byte("k")}})
	assert.Equal(t, r.Code, wire.CodeSuccess)
	assert.Equal(t, string(r.Result[0]), "v")
}

func TestServicePortNotReadyGate(t *testing.T) {
	service, _, _ := startTestServer(t, false)

	resp := sendCommand(t, service, &wire.Command{Name: "GET", Parameters: [][]byte{[]byte("k")}})
	assert.Equal(t, resp.Code, wire.CodeError)

	resp = sendCommand(t, service, &wire.Command{Name: "CLUSTER_INFO"})
	assert.Equal(t, resp.Code, wire.CodeSuccess)
}

func TestAdminCommandRejectedOnServicePortAllowedOnManager(t *testing.T) {
	service, manager, _ := startTestServer(t, true)

	resp := sendCommand(t, service, &wire.Command{Name: "SHOW_DBS"})
	assert.Equal(t, resp.Code, wire.CodeError)

	resp = sendCommand(t, manager, &wire.Command{Name: "SHOW_DBS"})
	assert.Equal(t, resp.Code, wire.CodeSuccess)
	assert.DeepEqual(t, resp.Result, [][]byte{[]byte("test")})
}
