package cluster

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/multierr"

	"github.com/leengari/kvdb/internal/wire"
)

// Backoff controls the retry delay for unreachable peers.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultBackoff matches spec.md §4.9: base 1s, cap 30s.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Cap: 30 * time.Second}
}

// Prober drives the startup cluster handshake against Local's peers.
type Prober struct {
	Local   Descriptor
	Backoff Backoff
	Dial    func(ctx context.Context, addr string) (net.Conn, error)
}

// NewProber builds a Prober dialing peers with the default net dialer.
func NewProber(local Descriptor) *Prober {
	var dialer net.Dialer
	return &Prober{
		Local:   local,
		Backoff: DefaultBackoff(),
		Dial:    dialer.DialContext,
	}
}

// Converge blocks until every clustered database's peers (peer lists with
// more than one entry) confirm the local descriptor, or returns a fatal
// error the first time any reachable peer reports a mismatching
// descriptor. Unreachable peers are retried with exponential backoff
// until they respond or ctx is cancelled.
func (p *Prober) Converge(ctx context.Context) error {
	pending := make(map[string][]string)
	for db, peers := range p.Local {
		if len(peers) > 1 {
			pending[db] = append([]string(nil), peers...)
		}
	}

	delay := p.Backoff.Base
	for len(pending) > 0 {
		var mismatches error
		next := make(map[string][]string)

		for db, peers := range pending {
			var unreachable []string
			for _, peer := range peers {
				remote, err := p.probe(ctx, peer)
				if err != nil {
					unreachable = append(unreachable, peer)
					continue
				}
				if !sameShape(remote[db], p.Local[db]) {
					mismatches = multierr.Append(mismatches, fmt.Errorf(
						"cluster: peer %s reports a mismatching peer list for database %q", peer, db))
				}
			}
			if len(unreachable) > 0 {
				next[db] = unreachable
			}
		}

		if mismatches != nil {
			return mismatches
		}
		pending = next
		if len(pending) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > p.Backoff.Cap {
			delay = p.Backoff.Cap
		}
	}
	return nil
}

// probe dials addr and issues a single CLUSTER_INFO request, returning the
// peer's reported descriptor.
func (p *Prober) probe(ctx context.Context, addr string) (Descriptor, error) {
	conn, err := p.Dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("cluster: dialing %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	req := &wire.Message{
		ID:      1,
		Kind:    wire.KindRequest,
		Command: &wire.Command{Name: "CLUSTER_INFO"},
	}
	payload, err := wire.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("cluster: encoding request: %w", err)
	}
	if err := wire.WriteFrame(conn, payload); err != nil {
		return nil, fmt.Errorf("cluster: writing to %s: %w", addr, err)
	}

	fr := wire.NewFrameReader(conn)
	respPayload, err := fr.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("cluster: reading from %s: %w", addr, err)
	}
	respMsg, err := wire.Decode(respPayload)
	if err != nil {
		return nil, fmt.Errorf("cluster: decoding response from %s: %w", addr, err)
	}
	if respMsg.Response == nil || respMsg.Response.Code != wire.CodeSuccess {
		return nil, fmt.Errorf("cluster: %s refused CLUSTER_INFO", addr)
	}
	return decode(respMsg.Response.Result)
}
