package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/fiscalops/apbots/internal/app"
	"github.com/fiscalops/apbots/internal/async"
	"github.com/fiscalops/apbots/internal/common"
	"github.com/fiscalops/apbots/internal/ingest"
	"github.com/fiscalops/apbots/internal/metrics"
	"github.com/fiscalops/apbots/internal/runs"
	svc "github.com/fiscalops/apbots/internal/server"
)

const botName = "voucher"

func main() {
	logger := app.NewLogger()
	if err := common.LoadEnvFile(); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bots, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer bots.Close()

	if err := svc.PingDB(ctx, bots.DB, logger, 5*time.Second); err != nil {
		os.Exit(1)
	}

	queue := bots.Runs.StartWorker(
		async.WithWorkers(1),
		async.WithQueueSize(128),
		async.WithRunTimeout(6*time.Hour),
	)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	metricsSrv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics listening", "addr", cfg.Server.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics serve error", "error", err)
		}
	}()

	// gRPC server
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(svc.UnaryLogging(logger)))
	svc.RegisterRunControlServer(grpcServer, svc.NewRunsServer(bots.Runs, bots.Export, cfg.Pipeline.TestMode, logger))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(svc.RunControlServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	go func() {
		logger.Info("botsd listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()

	// Inbox watcher
	if len(cfg.Pipeline.InboxDirs) > 0 {
		arrivals, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Inboxes:     cfg.Pipeline.InboxDirs,
			InitialScan: true,
			Debounce:    cfg.Pipeline.WatchDebounce,
		}, logger)
		if err != nil {
			logger.Error("failed to start inbox watcher", "error", err)
			os.Exit(1)
		}
		sched := &scheduler{runs: bots.Runs, testMode: cfg.Pipeline.TestMode, active: map[string]string{}, logger: logger}
		go sched.loop(ctx, arrivals, errs)
	} else {
		logger.Info("no INBOX_DIRS configured, runs start through RunControl only")
	}

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Shutdown()
	grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	queue.Shutdown(shutdownCtx)
}

// scheduler starts one run per inbox arrival unless that inbox already
// has a run in flight; the inbox name becomes the run identifier.
type scheduler struct {
	runs     *runs.Service
	testMode bool
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]string // inbox -> run id
}

func (s *scheduler) loop(ctx context.Context, arrivals <-chan ingest.Arrival, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warn("inbox watcher error", "error", err)
		case a, ok := <-arrivals:
			if !ok {
				return
			}
			s.schedule(ctx, a)
		}
	}
}

func (s *scheduler) schedule(ctx context.Context, a ingest.Arrival) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if runID, ok := s.active[a.Inbox]; ok {
		run, err := s.runs.Get(ctx, runID)
		if err == nil && !run.Status.Terminal() {
			s.logger.Info("inbox already has a run in flight", "inbox", a.Inbox, "run_id", runID, "files", len(a.Files))
			return
		}
	}

	// rename events also fire when a run moves files out of the inbox
	if docs, err := ingest.ListDocuments(a.Inbox); err != nil || len(docs) == 0 {
		return
	}

	run, err := s.runs.CreateRun(ctx, runs.NewRun{
		BotName:    botName,
		Identifier: filepath.Base(a.Inbox),
		Directory:  a.Inbox,
		TestMode:   s.testMode,
		Context:    map[string]any{"trigger": "watcher"},
	})
	if err != nil {
		s.logger.Error("failed to create run", "inbox", a.Inbox, "error", err)
		return
	}
	if err := s.runs.Enqueue(ctx, run.RunID); err != nil {
		s.logger.Error("failed to enqueue run", "run_id", run.RunID, "error", err)
		return
	}
	s.active[a.Inbox] = run.RunID
	s.logger.Info("run scheduled", "inbox", a.Inbox, "run_id", run.RunID, "files", len(a.Files))
}
