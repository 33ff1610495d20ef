package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/gelchrist-coder/gel-invent/internal/adapter/api"
	"github.com/gelchrist-coder/gel-invent/internal/adapter/handler"
	"github.com/gelchrist-coder/gel-invent/internal/adapter/session"
	"github.com/gelchrist-coder/gel-invent/internal/adapter/storage"
	"github.com/gelchrist-coder/gel-invent/internal/config"
	"github.com/gelchrist-coder/gel-invent/internal/core/event"
	"github.com/gelchrist-coder/gel-invent/internal/core/service"
	"github.com/gelchrist-coder/gel-invent/internal/metrics"
	"github.com/gelchrist-coder/gel-invent/internal/port"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Initialize durable store
	kv, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.StoreDriver, err)
	}
	log.Printf("using %s store", cfg.StoreDriver)

	// Initialize core
	bus := event.NewBus(logger)
	state := session.NewState(bus, cfg.ActiveBranchID, cfg.StartOnline)
	client := api.NewClient(cfg.APIBaseURL, cfg.APIToken, cfg.RequestTimeout)

	cache := service.NewProductCache(kv, state, logger)
	outbox := service.NewSaleOutbox(kv, state, bus, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)
	stopMetrics := m.Watch(bus, outbox.GetSalesOutboxCount, state.IsOnline())
	defer stopMetrics()

	engine := service.NewSyncEngine(client, outbox, cache, state, bus, service.EngineOptions{
		Logger:             logger,
		Observer:           m,
		MinTriggerInterval: cfg.SyncMinInterval,
		TriggerTimeout:     cfg.RequestTimeout * 4,
	})
	defer engine.Close()
	checkout := service.NewCheckout(engine)

	// Replay sales queued by an earlier session
	go func() {
		result := engine.Start(ctx)
		log.Printf("startup sync: skipped=%v confirmed=%d remaining=%d", result.Skipped, result.Confirmed, result.Remaining)
	}()

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	health := handler.NewHealthReporter()
	health.Register(grpcServer)
	stopHealth := health.Watch(bus, state.IsOnline())
	defer stopHealth()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()

	// Initialize HTTP server
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	handler.NewHTTPHandler(state, engine, checkout, cache, outbox).Register(router)
	handler.NewEventStream(bus, logger).Register(router)
	if cfg.PrometheusEnabled {
		log.Println("prometheus metrics enabled on /metrics")
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	cancel()

	// Stop HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Println("HTTP server stopped")

	// Stop gRPC server
	health.Shutdown()
	grpcServer.GracefulStop()
	log.Println("gRPC server stopped")

	// Close connections
	if err := closeStore.Close(); err != nil {
		log.Printf("store close error: %v", err)
	}
	log.Println("connections closed")
}

func openStore(ctx context.Context, cfg *config.Config) (port.KeyValueStore, io.Closer, error) {
	switch cfg.StoreDriver {
	case "memory":
		return storage.NewMemoryAdapter(), io.NopCloser(nil), nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 10,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, err
		}
		return storage.NewRedisAdapter(rdb, cfg.RedisPrefix), rdb, nil
	}

	dialect, err := storage.ParseDialect(cfg.StoreDriver)
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.OpenSQL(ctx, dialect, cfg.StoreDSN)
	if err != nil {
		return nil, nil, err
	}
	adapter, err := storage.NewSQLAdapter(db, dialect)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := adapter.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return adapter, db, nil
}
