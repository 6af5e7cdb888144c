package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/pos-core/internal/adapter/handler"
	"github.com/rl1809/pos-core/internal/adapter/messaging"
	"github.com/rl1809/pos-core/internal/adapter/storage"
	"github.com/rl1809/pos-core/internal/config"
	"github.com/rl1809/pos-core/internal/core/policy"
	"github.com/rl1809/pos-core/internal/core/service"
	"github.com/rl1809/pos-core/internal/platform/observability"
	"github.com/rl1809/pos-core/internal/port"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	locker, closeLocker, err := openLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	publisher, closePublisher := openPublisher(cfg, logger)
	defer closePublisher()

	policies := policy.Default()
	if cfg.TaxRate.IsPositive() {
		policies.Tax = policy.FlatRate(cfg.TaxRate)
	}
	core := service.New(store, locker, publisher,
		service.WithLogger(logger),
		service.WithPolicies(policies),
		service.WithRetry(cfg.MaxRetries, cfg.RetryBackoff),
	)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler.NewHTTPHandler(core, logger).Register(router)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.LoggingInterceptor(logger)))
	handler.NewGRPCHandler(core).Register(grpcServer)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(sctx); err != nil {
			logger.Warn("HTTP shutdown failed", zap.Error(err))
		}

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-sctx.Done():
			grpcServer.Stop()
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

// openStore connects to MySQL when a DSN is configured and falls back to
// the in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (port.Store, func(), error) {
	if cfg.MySQLDSN == "" {
		logger.Info("Using in-memory store")
		return storage.NewMemoryStore(), func() {}, nil
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.MySQLMaxConns)
	db.SetMaxIdleConns(cfg.MySQLMaxConns / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping mysql: %w", err)
	}

	adapter := storage.NewMySQLAdapter(db, cfg.LockWait)
	if err := adapter.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate mysql: %w", err)
	}
	logger.Info("Connected to MySQL")
	return adapter, func() { db.Close() }, nil
}

func openLocker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (port.Locker, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("Using in-process locker")
		return storage.NewMemoryLocker(cfg.LockWait), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))
	return storage.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait), func() { rdb.Close() }, nil
}

func openPublisher(cfg *config.Config, logger *zap.Logger) (port.EventPublisher, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		return messaging.NewLogPublisher(logger), func() {}
	}

	publisher := messaging.NewKafkaPublisher(messaging.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), logger)
	logger.Info("Publishing events to Kafka",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic),
	)
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("Kafka writer close failed", zap.Error(err))
		}
	}
}
