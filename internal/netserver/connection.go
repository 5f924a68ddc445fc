package netserver

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"

	"github.com/leengari/kvdb/internal/metrics"
	"github.com/leengari/kvdb/internal/session"
	"github.com/leengari/kvdb/internal/wire"
)

const mailboxSize = 16

// mailbox decouples a connection's writer goroutine from whatever
// produces its responses, and silently drops sends made after the
// connection has closed rather than blocking or panicking on a closed
// channel.
type mailbox struct {
	ch     chan *wire.Message
	closed atomic.Bool
}

func newMailbox() *mailbox {
	return &mailbox{ch: make(chan *wire.Message, mailboxSize)}
}

func (m *mailbox) send(msg *wire.Message) {
	if m.closed.Load() {
		return
	}
	select {
	case m.ch <- msg:
	default:
		// A saturated mailbox means the writer has fallen behind a slow
		// client; drop rather than block the dispatch pipeline.
	}
}

func (m *mailbox) close() {
	m.closed.Store(true)
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, admin bool) {
	defer conn.Close()

	sourceKey := conn.RemoteAddr().String()
	sess := session.New(sourceKey)

	s.ctx.RegisterSession(sess)
	defer s.ctx.RemoveSession(sess)

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	box := newMailbox()
	defer box.close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.writeLoop(connCtx, conn, box)

	fr := wire.NewFrameReader(conn)
	if s.maxFrameSize != 0 {
		fr.MaxSize = s.maxFrameSize
	}
	for {
		payload, err := fr.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("connection read error", "source", sourceKey, "error", err)
			}
			return
		}

		msg, err := wire.Decode(payload)
		if err != nil {
			s.logger.Warn("malformed message, closing connection", "source", sourceKey, "error", err)
			return
		}
		if msg.Kind != wire.KindRequest || msg.Command == nil {
			s.logger.Warn("unexpected message kind, closing connection", "source", sourceKey)
			return
		}

		cmd := msg.Command
		resp := s.dispatch(connCtx, cmd, func(dctx context.Context, c *wire.Command) *wire.Response {
			return s.ctx.ProcessCommand(dctx, sess, admin, c)
		})

		box.send(&wire.Message{ID: msg.ID, Kind: wire.KindResponse, Response: resp})
	}
}

func (s *Server) writeLoop(ctx context.Context, conn net.Conn, box *mailbox) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-box.ch:
			if !ok {
				return
			}
			payload, err := wire.Encode(msg)
			if err != nil {
				s.logger.Error("encoding response", "error", err)
				continue
			}
			if err := wire.WriteFrame(conn, payload); err != nil {
				return
			}
		}
	}
}
