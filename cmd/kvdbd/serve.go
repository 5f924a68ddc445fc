package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leengari/kvdb/internal/cluster"
	"github.com/leengari/kvdb/internal/config"
	"github.com/leengari/kvdb/internal/dbserver"
	"github.com/leengari/kvdb/internal/kvdberr"
	"github.com/leengari/kvdb/internal/logging"
	"github.com/leengari/kvdb/internal/metrics"
	"github.com/leengari/kvdb/internal/netserver"
	"github.com/leengari/kvdb/internal/telemetry"
)

// Exit codes, per spec.md §6.
const (
	exitOK              = 0
	exitConfigError     = 1
	exitClusterFatal    = 2
	exitRecoveryFailure = 3
	exitEngineOpen      = 4
)

var (
	configPath  string
	dbListPath  string
	clusterPath string
	seqURL      string
	debugLog    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the kvdb server",
	Run:   runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "kvdb.conf", "path to kvdb.conf")
	serveCmd.Flags().StringVar(&dbListPath, "dblist", "system/dblist", "path to the database list file")
	serveCmd.Flags().StringVar(&clusterPath, "cluster-file", "cluster.conf", "path to cluster.conf")
	serveCmd.Flags().StringVar(&seqURL, "seq-url", "", "Seq server URL for structured logging (optional)")
	serveCmd.Flags().BoolVar(&debugLog, "debug", false, "enable debug-level logging")
}

func runServe(_ *cobra.Command, _ []string) {
	logger, closeLog := logging.SetupLogger(seqURL, debugLog)
	defer closeLog()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(exitConfigError)
	}

	dbEntries, err := config.LoadDBList(dbListPath)
	if err != nil {
		logger.Error("failed to load database list", "error", err)
		os.Exit(exitConfigError)
	}

	clusterDescriptor, err := config.LoadCluster(clusterPath)
	if err != nil {
		logger.Error("failed to load cluster configuration", "error", err)
		os.Exit(exitConfigError)
	}

	shutdownTracing := telemetry.Setup("kvdbd")
	defer shutdownTracing(context.Background())

	dbctx := dbserver.New(cfg)
	dbctx.SetFatalHandler(func(kind kvdberr.Kind, err error) {
		logger.Error("durability cannot be confirmed for a write, exiting so WAL recovery runs on restart",
			"kind", kind, "error", err)
		os.Exit(exitEngineOpen)
	})
	if err := dbctx.OpenDatabases(dbEntries); err != nil {
		var recErr *dbserver.RecoveryError
		if errors.As(err, &recErr) {
			logger.Error("WAL recovery failed", "database", recErr.DB, "error", recErr.Err)
			os.Exit(exitRecoveryFailure)
		}
		logger.Error("failed to open database engine", "error", err)
		os.Exit(exitEngineOpen)
	}
	defer dbctx.CloseAll()

	dbctx.SetCluster(clusterDescriptor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	serviceAddr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	managerAddr := fmt.Sprintf("127.0.0.1:%d", cfg.ManagerPort)
	srv := netserver.New(dbctx, logger, serviceAddr, managerAddr, cfg.MaxFrameSize)

	// Bind both ports before the cluster handshake: CLUSTER_INFO is an
	// open command admitted on the service port (and everything is
	// admitted on the manager port) even while ready=false, so peers
	// converging against this node need it already listening.
	if err := srv.Listen(); err != nil {
		logger.Error("failed to bind listeners", "error", err)
		os.Exit(exitEngineOpen)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.Serve(ctx)
	}()

	if anyClustered(clusterDescriptor) {
		if err := convergeCluster(ctx, clusterDescriptor, logger); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Info("shutting down before cluster handshake completed")
				os.Exit(exitOK)
			}
			logger.Error("cluster handshake failed", "error", err)
			os.Exit(exitClusterFatal)
		}
	}
	dbctx.SetReady(true)
	logger.Info("server ready", "service_addr", serviceAddr)

	go serveMetrics(cfg.MetricsAddr, logger)

	if err := <-serverErrCh; err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(exitEngineOpen)
	}

	logger.Info("clean shutdown")
	os.Exit(exitOK)
}

func anyClustered(descriptor map[string][]string) bool {
	for _, peers := range descriptor {
		if len(peers) > 1 {
			return true
		}
	}
	return false
}

func convergeCluster(ctx context.Context, descriptor cluster.Descriptor, logger interface {
	Info(string, ...any)
}) error {
	prober := cluster.NewProber(descriptor)
	logger.Info("starting cluster handshake")
	return prober.Converge(ctx)
}

func serveMetrics(addr string, logger interface {
	Error(string, ...any)
}) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Error("metrics server exited", "error", err)
	}
}
