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

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry
	telemetry, err := initTelemetry(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize telemetry: %v\n", err)
		os.Exit(1)
	}

	var lp otellog.LoggerProvider
	if telemetry.LoggerProvider != nil {
		lp = telemetry.LoggerProvider
	}
	logger := newLogger(cfg.ServiceName, lp)
	defer logger.Sync()

	if err := run(ctx, cfg, telemetry, logger); err != nil {
		logger.Error("❌ Orders service stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		logger.Warn("⚠️ Error shutting down telemetry", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *Config, telemetry *Telemetry, logger *zap.Logger) error {
	tracer := telemetry.TracerProvider.Tracer(cfg.ServiceName)
	metrics, err := NewMetrics(telemetry.MeterProvider.Meter(cfg.ServiceName))
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	publisher, err := newEventPublisher(cfg, telemetry.TracerProvider, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("⚠️ Error closing event publisher", zap.Error(err))
		}
	}()

	// Initialize dependencies
	useCase := NewOrderUseCase(store, publisher, logger, tracer, metrics)
	handler := NewOrderHandler(useCase, tracer, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg.ServiceName, telemetry.TracerProvider, handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("🚀 Orders Service listening", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("⏳ Shutting down orders service", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRouter monta o gin com recovery e o middleware do OpenTelemetry
func newRouter(serviceName string, tp trace.TracerProvider, handler *OrderHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName, otelgin.WithTracerProvider(tp)))
	handler.RegisterRoutes(r)
	return r
}

// openStore escolhe o armazenamento conforme STORE_DRIVER
func openStore(ctx context.Context, cfg *Config, logger *zap.Logger) (Store, func(), error) {
	if cfg.StoreDriver == StoreDriverMemory {
		store := NewMemoryStore()
		if err := seedMemoryStore(store); err != nil {
			return nil, nil, fmt.Errorf("failed to seed memory store: %w", err)
		}
		logger.Info("✅ Using in-memory store with demo catalog")
		return store, func() {}, nil
	}

	db, err := initDB(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if cfg.DatabaseMigrate {
		if err := migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("✅ Database schema applied")
	}
	if cfg.DatabaseSeed {
		if err := seedPostgres(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("✅ Demo catalog seeded")
	}
	return NewPostgresStore(db), db.Close, nil
}

// newEventPublisher usa Kafka quando KAFKA_BROKER está definido
func newEventPublisher(cfg *Config, tp trace.TracerProvider, logger *zap.Logger) (EventPublisher, error) {
	if cfg.KafkaBroker == "" {
		logger.Info("ℹ️ KAFKA_BROKER not set, order events disabled")
		return noopPublisher{}, nil
	}
	publisher, err := NewKafkaEventPublisher(cfg.KafkaBroker, cfg.KafkaTopic, cfg.ServiceName, tp, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("✅ Publishing order events", zap.String("broker", cfg.KafkaBroker), zap.String("topic", cfg.KafkaTopic))
	return publisher, nil
}

func initDB(ctx context.Context, cfg *Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// Configure connection pool
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Wait for database to be ready
	for i := 0; i < 30; i++ {
		if err := pool.Ping(ctx); err == nil {
			logger.Info("✅ Connected to orders database", zap.Int32("max_conns", config.MaxConns))
			return pool, nil
		}
		logger.Info("⏳ Waiting for database...", zap.Int("attempt", i+1), zap.Int("max_attempts", 30))
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}

	pool.Close()
	return nil, fmt.Errorf("failed to connect to database after 30 attempts")
}
