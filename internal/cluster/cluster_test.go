package cluster

import (
	"context"
	"net"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/leengari/kvdb/internal/wire"
)

// startFakePeer runs a TCP listener that accepts connections until the
// test ends and answers one CLUSTER_INFO request per connection with the
// given descriptor.
func startFakePeer(t *testing.T, descriptor Descriptor) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				fr := wire.NewFrameReader(conn)
				payload, err := fr.ReadFrame()
				if err != nil {
					return
				}
				msg, err := wire.Decode(payload)
				if err != nil || msg.Command == nil || msg.Command.Name != "CLUSTER_INFO" {
					return
				}
				resp := &wire.Message{
					ID:   msg.ID,
					Kind: wire.KindResponse,
					Response: &wire.Response{
						Code:   wire.CodeSuccess,
						Result: encode(descriptor),
					},
				}
				out, err := wire.Encode(resp)
				if err != nil {
					return
				}
				wire.WriteFrame(conn, out)
			}()
		}
	}()
	return ln.Addr().String()
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	d := Descriptor{"test": {"a:1", "b:2"}}
	decoded, err := decode(encode(d))
	assert.NilError(t, err)
	assert.DeepEqual(t, decoded["test"], d["test"])
}

func TestSameShapeIgnoresOrderRejectsDuplicates(t *testing.T) {
	assert.Assert(t, sameShape([]string{"a", "b"}, []string{"b", "a"}))
	assert.Assert(t, !sameShape([]string{"a", "a"}, []string{"a", "b"}))
	assert.Assert(t, !sameShape([]string{"a"}, []string{"a", "b"}))
}

func TestConvergeSucceedsWhenPeersAgree(t *testing.T) {
	local := Descriptor{"test": {"peerA", "peerB"}}
	addr := startFakePeer(t, local)

	// Both configured peers are routed to the fake peer, which reports the
	// same peer list back.
	p := NewProber(local)
	var dialer net.Dialer
	p.Dial = func(ctx context.Context, _ string) (net.Conn, error) {
		return dialer.DialContext(ctx, "tcp", addr)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NilError(t, p.Converge(ctx))
}

func TestConvergeFailsFatallyOnMismatch(t *testing.T) {
	remote := Descriptor{"test": {"peerX", "peerY"}}
	addr := startFakePeer(t, remote)

	p := NewProber(Descriptor{"test": {addr, "other-peer"}})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := p.Converge(ctx)
	assert.ErrorContains(t, err, "mismatching")
}

func TestConvergeRetriesUnreachablePeerUntilCancel(t *testing.T) {
	p := NewProber(Descriptor{"test": {"127.0.0.1:1", "other-peer"}})
	p.Backoff = Backoff{Base: 10 * time.Millisecond, Cap: 20 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := p.Converge(ctx)
	assert.ErrorContains(t, err, "context deadline exceeded")
}
