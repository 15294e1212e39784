package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"telephone-billing/internal/auth"
	"telephone-billing/internal/bills"
	"telephone-billing/internal/calls"
	"telephone-billing/internal/config"
	"telephone-billing/internal/httpapi"
	"telephone-billing/internal/metrics"
	"telephone-billing/internal/records"
	"telephone-billing/internal/storage/memory"
	"telephone-billing/internal/storage/postgres"
	"telephone-billing/internal/storage/rediscache"
	"telephone-billing/internal/tariff"
	"telephone-billing/pkg/logger"
	"telephone-billing/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// store is what the API needs from a storage backend.
type store interface {
	records.Store
	calls.Repository
	bills.Repository
}

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	tcfg, err := cfg.TariffConfig()
	if err != nil {
		log.Error("tariff config invalid", "err", err)
		os.Exit(1)
	}
	engine, err := tariff.NewEngine(tcfg)
	if err != nil {
		log.Error("tariff init failed", "err", err)
		os.Exit(1)
	}

	st, ready, closers, err := openStore(rootCtx, cfg, log)
	if err != nil {
		log.Error("storage init failed", "err", err, "driver", cfg.Storage.Driver)
		os.Exit(1)
	}
	defer closeAll(log, closers)

	billReg := bills.NewRegistry(st, engine)
	if cfg.Redis.Host != "" {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		billReg = billReg.WithCache(rediscache.New(rdb, cfg.Redis.BillCacheTTL))
		ready = append(ready, httpapi.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}

	m := metrics.New(nil, cfg.App.Env)
	h := httpapi.Handlers{
		Records: records.NewService(st, calls.NewRegistry(st), billReg).WithObserver(m),
		Bills:   billReg,
		Ready:   ready,
	}

	var authManager *auth.Manager
	if cfg.Auth.JWTSecret != "" {
		authManager, err = auth.NewManager(cfg.Auth)
		if err != nil {
			log.Error("auth init failed", "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("JWT_SECRET not set; API is unauthenticated")
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(m.Middleware())

	registerRoutes(r, h, authManager)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store, []httpapi.Pinger, []io.Closer, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		s := memory.New()
		return s, []httpapi.Pinger{s}, nil, nil
	case config.StoragePostgres:
		db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.DB.AutoMigrate {
			if err := postgres.Migrate(db); err != nil {
				_ = db.Close()
				return nil, nil, nil, err
			}
			log.Info("migrations applied")
		}
		s := postgres.New(db)
		return s, []httpapi.Pinger{s}, []io.Closer{db}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func closeAll(log *slog.Logger, closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Error("close failed", "err", err)
		}
	}
}
