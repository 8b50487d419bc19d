package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/coursebench/workspaced/internal/api"
	"github.com/coursebench/workspaced/internal/content"
	"github.com/coursebench/workspaced/internal/core"
	"github.com/coursebench/workspaced/internal/homedir"
	"github.com/coursebench/workspaced/internal/hostctl"
	"github.com/coursebench/workspaced/internal/notify"
	"github.com/coursebench/workspaced/internal/objstore"
	"github.com/coursebench/workspaced/internal/observability"
	"github.com/coursebench/workspaced/internal/orchestrator"
	"github.com/coursebench/workspaced/internal/scheduler"
	"github.com/coursebench/workspaced/internal/store"
)

// lockedStore adapts the concrete transaction type to the orchestrator's
// callback surface.
type lockedStore struct {
	*store.Store
}

func (s lockedStore) WithLockedWorkspace(ctx context.Context, id string, fn func(ctx context.Context, ws core.Workspace, tx orchestrator.LockedWorkspace) error) error {
	return s.Store.WithLockedWorkspace(ctx, id, func(ctx context.Context, ws core.Workspace, tx *store.Tx) error {
		return fn(ctx, ws, tx)
	})
}

func main() {
	var cfg api.Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, _ := observability.NewLogger(cfg.LogLevel)
	defer log.Sync()

	// Replace global logger
	zap.ReplaceGlobals(log)

	reg := prometheus.DefaultRegisterer
	observability.RegisterAll(reg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := store.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer pool.Close()

	if err := store.Migrate(ctx, pool); err != nil {
		log.Fatal("migrate failed", zap.Error(err))
	}
	st := store.New(pool)

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		log.Fatal("work dir unavailable", zap.String("dir", cfg.WorkDir), zap.Error(err))
	}

	objClient, err := objstore.NewLocal(cfg.ObjectStoreRoot)
	if err != nil {
		log.Fatal("object store unavailable", zap.Error(err))
	}
	provider := content.NewDirProvider(cfg.ContentRoot)
	backends := homedir.NewSelector(
		homedir.NewObjectStore(objClient, provider, cfg.WorkDir, cfg.FetchFanOut, log),
		homedir.NewFilesystem(cfg.FilesystemRoot, provider, cfg.WorkDir,
			cfg.FilesystemUID, cfg.FilesystemGID, cfg.FetchFanOut, log),
	)

	sched := scheduler.New(st, cfg.CapacityThreshold, cfg.SubsystemEnabled, log)
	control := hostctl.New(st, cfg.WorkDir, cfg.ControlTimeout, cfg.SubsystemEnabled, log)
	notifier := notify.NewLogPublisher(log)

	orch := orchestrator.New(lockedStore{st}, backends, sched, control, notifier, orchestrator.Config{
		MaxLaunchAttempts: cfg.MaxLaunchAttempts,
		LaunchBackoff:     cfg.LaunchBackoff,
	}, log)

	// Main API server
	apiHandler := api.NewAPI(pool, st, orch, log)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      apiHandler.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Metrics server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: mux,
	}

	go func() {
		log.Info("metrics server starting", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		log.Info("API server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("API server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down API server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info("API server stopped")
}
