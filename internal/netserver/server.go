// Package netserver runs the two TCP listeners — the public service port
// and the loopback-only manager port — that speak the wire protocol to
// clients, dispatching every decoded command through a shared
// dbserver.Context.
package netserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"runtime"

	"github.com/leengari/kvdb/internal/dbserver"
	"github.com/leengari/kvdb/internal/wire"
)

// Server owns both listeners and the worker pool that dispatches decoded
// commands against a shared dbserver.Context.
type Server struct {
	ctx    *dbserver.Context
	logger *slog.Logger

	serviceAddr string
	managerAddr string

	serviceLn net.Listener
	managerLn net.Listener

	jobs         chan job
	maxFrameSize uint32
}

// job is one decoded command awaiting dispatch by a pool worker. The
// submitting connection blocks on result, which is what keeps a single
// connection's responses in request order while still sharing the pool's
// bounded concurrency across connections.
type job struct {
	ctx    context.Context
	cmd    *wire.Command
	result chan *wire.Response
	run    func(context.Context, *wire.Command) *wire.Response
}

// New builds a Server. serviceAddr and managerAddr are "host:port" strings;
// the caller is responsible for binding managerAddr to loopback only.
// maxFrameSize caps the declared length the frame codec accepts before
// closing a connection (spec.md §4.1); 0 falls back to wire.DefaultMaxFrameSize.
func New(ctx *dbserver.Context, logger *slog.Logger, serviceAddr, managerAddr string, maxFrameSize uint32) *Server {
	return &Server{
		ctx:          ctx,
		logger:       logger,
		serviceAddr:  serviceAddr,
		managerAddr:  managerAddr,
		jobs:         make(chan job, runtime.NumCPU()*2),
		maxFrameSize: maxFrameSize,
	}
}

// Listen binds both the service and manager ports. It must be called
// before Serve, and before the caller starts anything (such as the
// cluster handshake) that depends on this node already accepting
// connections: the service port admits only CLUSTER_INFO and the
// manager port admits everything until the server's readiness gate
// opens, so binding early lets peers converge against this node while
// it is still starting up.
func (s *Server) Listen() error {
	serviceLn, err := net.Listen("tcp", s.serviceAddr)
	if err != nil {
		return fmt.Errorf("netserver: binding service port %s: %w", s.serviceAddr, err)
	}
	managerLn, err := net.Listen("tcp", s.managerAddr)
	if err != nil {
		serviceLn.Close()
		return fmt.Errorf("netserver: binding manager port %s: %w", s.managerAddr, err)
	}
	s.serviceLn = serviceLn
	s.managerLn = managerLn
	return nil
}

// Serve runs the worker pool and both accept loops until ctx is
// cancelled. Listen must have been called first.
func (s *Server) Serve(ctx context.Context) error {
	defer s.serviceLn.Close()
	defer s.managerLn.Close()

	workers := runtime.NumCPU() * 2
	for i := 0; i < workers; i++ {
		go s.runWorker(ctx)
	}

	go func() {
		<-ctx.Done()
		s.serviceLn.Close()
		s.managerLn.Close()
	}()

	go s.acceptLoop(ctx, s.serviceLn, false)
	s.acceptLoop(ctx, s.managerLn, true)
	return nil
}

// ListenAndServe binds both listeners and blocks, running worker pool
// goroutines and the two accept loops until ctx is cancelled. Equivalent
// to calling Listen followed by Serve; callers that need the listeners
// bound before starting other work (e.g. the cluster handshake) should
// call Listen and Serve separately instead.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, admin bool) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.logger.Warn("accept failed", "admin", admin, "error", err)
				continue
			}
		}
		go s.handleConnection(ctx, conn, admin)
	}
}

func (s *Server) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.jobs:
			j.result <- j.run(j.ctx, j.cmd)
		}
	}
}

func (s *Server) dispatch(ctx context.Context, cmd *wire.Command, run func(context.Context, *wire.Command) *wire.Response) *wire.Response {
	result := make(chan *wire.Response, 1)
	select {
	case s.jobs <- job{ctx: ctx, cmd: cmd, result: result, run: run}:
	case <-ctx.Done():
		return &wire.Response{Code: wire.CodeError, Message: "server shutting down"}
	}
	select {
	case resp := <-result:
		return resp
	case <-ctx.Done():
		return &wire.Response{Code: wire.CodeError, Message: "server shutting down"}
	}
}
