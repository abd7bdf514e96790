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
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/photo-capture/internal/config"
	"github.com/example/photo-capture/internal/handlers"
	"github.com/example/photo-capture/internal/logging"
	"github.com/example/photo-capture/internal/repository"
	"github.com/example/photo-capture/internal/storage"
	"github.com/example/photo-capture/internal/transform"
	"github.com/example/photo-capture/internal/usecase"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	// Capture-log persistence is optional; the cycle itself is ephemeral.
	var repo usecase.CaptureLogRepository
	if cfg.Database.DSN != "" {
		db := initDatabase(ctx, cfg.Database.DSN, logger)
		captureRepo := repository.NewCaptureLogRepository(db, logger)
		if err := captureRepo.AutoMigrate(ctx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
		repo = captureRepo
	} else {
		logger.Info("capture-log persistence disabled")
	}

	var cache usecase.Cache
	if cfg.Redis.Addr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		cache = usecase.NewRedisCache(initRedis(redisCtx, cfg.Redis, logger))
	} else {
		logger.Info("result cache disabled")
	}

	var sink *storage.DiskSink
	var photoStore handlers.PhotoStore
	if cfg.Storage.Dir != "" {
		sink, err = storage.NewDiskSink(cfg.Storage.Dir, cfg.Storage.QueueSize, logger)
		if err != nil {
			logger.Fatal("failed to initialize capture storage", zap.Error(err))
		}
		defer sink.Close()
		photoStore = sink
	} else {
		logger.Info("capture storage disabled")
	}

	pipeline := transform.NewPipeline(cfg.Pipeline.TargetWidth, cfg.Pipeline.TargetHeight)
	uc := newUseCase(pipeline, cache, repo, sink, logger)

	r := gin.Default()
	r.Use(cors.Default())
	if cfg.Server.WebDir != "" {
		r.Use(static.Serve("/", static.LocalFile(cfg.Server.WebDir, false)))
	}

	handlers.RegisterRoutes(r, uc, photoStore)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	logger.Info("processing service listening",
		zap.Int("port", cfg.Server.Port),
		zap.String("transform", pipeline.Name()),
		zap.String("storage_dir", cfg.Storage.Dir))
	if err := serveHTTPServer(server, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// newUseCase keeps the nil-interface plumbing in one place: a nil *DiskSink
// must become a nil Sink, not a non-nil interface holding a nil pointer.
func newUseCase(tf transform.Transform, cache usecase.Cache, repo usecase.CaptureLogRepository, sink *storage.DiskSink, logger *zap.Logger) *usecase.ProcessingUseCase {
	var s usecase.Sink
	if sink != nil {
		s = sink
	}
	return usecase.NewProcessingUseCase(tf, cache, repo, s, logger)
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, cfg config.RedisConfig, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
