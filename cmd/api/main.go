package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"trialgate.org/internal/audit"
	"trialgate.org/internal/auth"
	"trialgate.org/internal/config"
	"trialgate.org/internal/hookrpc"
	"trialgate.org/internal/hooks"
	"trialgate.org/internal/httpapi"
	"trialgate.org/internal/obs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

const readinessInterval = 10 * time.Second

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		db    *sql.DB
		store auth.Store
	)
	if cfg.DatabaseDSN != "" {
		db, err = sql.Open("pgx", cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = auth.NewPGStore(db)
	} else {
		obs.Warn("TRIALGATE_PG_DSN not set, using in-memory store", nil)
		store = auth.NewMemoryStore()
	}

	core, err := auth.NewCore(store, cfg, auth.WithAuditor(audit.NewRecorder(store)))
	if err != nil {
		log.Fatalf("auth core: %v", err)
	}
	handler := hooks.NewHandler(core)
	probe := httpapi.ReadyProbe{DB: db}

	api := httpapi.New(httpapi.Deps{
		Core:              core,
		Hooks:             handler,
		Ready:             probe,
		Version:           version,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(hookrpc.UnaryLogging))
	healthSrv := hookrpc.Register(grpcServer, handler)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen grpc: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go watchReadiness(ctx, probe, healthSrv)

	go func() {
		obs.Info("http listening", map[string]any{"addr": srv.Addr, "version": version})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()
	go func() {
		obs.Info("grpc listening", map[string]any{"addr": cfg.GRPCAddr})
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	<-ctx.Done()
	obs.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hookrpc.SetReady(healthSrv, false)
	_ = srv.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	if db != nil {
		_ = db.Close()
	}
	obs.Info("stopped", nil)
}

func watchReadiness(ctx context.Context, probe httpapi.ReadyProbe, hs *health.Server) {
	ticker := time.NewTicker(readinessInterval)
	defer ticker.Stop()
	for {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := probe.Check(checkCtx)
		cancel()
		if err != nil {
			obs.Warn("readiness probe failed", map[string]any{"error": err})
		}
		hookrpc.SetReady(hs, err == nil)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
