// @title                       Notebook Lending API
// @version                     1.0
// @description                 Equipment, people and loan management for a notebook lending desk.
// @BasePath                    /api/v1
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"notebook-lending/internal/platform/auth"
	"notebook-lending/internal/platform/clock"
	"notebook-lending/internal/platform/config"
	"notebook-lending/internal/platform/db"
	"notebook-lending/internal/platform/logger"
	"notebook-lending/internal/platform/metrics"
	"notebook-lending/internal/platform/validation"
	"notebook-lending/internal/server"
)

func main() {
	// 設定読み込み
	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "Usage: mode must be dev or release (config/config.yaml or APP_MODE)")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Mode)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("starting", zap.String("mode", cfg.Mode), zap.String("version", cfg.Version))

	if err := validation.Register(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info("connected to DB", zap.String("driver", cfg.DB.Driver), zap.String("dbname", cfg.DB.DBName))

	applied, err := db.Migrate(ctx, conn, cfg.DB.Driver)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		log.Info("migrations applied", zap.Int64s("versions", applied))
	}

	clk := clock.Real{}
	revoker, closeRevoker, err := newRevoker(ctx, cfg.Redis, clk, log)
	if err != nil {
		return err
	}
	defer closeRevoker()

	app := server.New(cfg, server.Deps{
		DB:      conn,
		Clock:   clk,
		Revoker: revoker,
		Metrics: metrics.New(),
		Log:     log,
	})

	if _, err := app.People.EnsurePrimaryAdmin(ctx, cfg.Admin); err != nil {
		return err
	}

	// 起動時に一度だけ整合性を直す
	if res, err := app.Loans.Reconcile(ctx); err != nil {
		return fmt.Errorf("startup reconcile: %w", err)
	} else if n := len(res.Released) + len(res.Marked); n > 0 {
		log.Warn("startup reconcile repaired equipment", zap.Int("count", n))
	}
	go app.Loans.RunReconciler(ctx, cfg.Lending.ReconcileInterval)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- serve(srv, cfg, log)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Graceful shutdown
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func serve(srv *http.Server, cfg *config.Config, log *zap.Logger) error {
	var err error
	if cfg.Certificate.Cert == "" || cfg.Certificate.Key == "" {
		log.Info("listening (plain HTTP)", zap.String("addr", srv.Addr))
		err = srv.ListenAndServe()
	} else {
		// TLS設定
		dir := "config/tls/release"
		if cfg.Mode == config.ModeDev {
			dir = "config/tls/dev"
		}
		certFile := fmt.Sprintf("%s/%s", dir, cfg.Certificate.Cert)
		keyFile := fmt.Sprintf("%s/%s", dir, cfg.Certificate.Key)
		log.Info("listening (TLS)", zap.String("addr", srv.Addr), zap.String("cert", certFile))
		err = srv.ListenAndServeTLS(certFile, keyFile)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// newRevoker uses Redis when an address is configured so logouts are seen by
// every instance; a single instance can run on the in-memory store.
func newRevoker(ctx context.Context, cfg config.RedisConfig, clk clock.Clock, log *zap.Logger) (auth.Revoker, func(), error) {
	if cfg.Addr == "" {
		log.Info("token revocation: in-memory")
		return auth.NewMemoryRevoker(clk.Now), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	log.Info("token revocation: redis", zap.String("addr", cfg.Addr))
	return auth.NewRedisRevoker(rdb), func() { _ = rdb.Close() }, nil
}
