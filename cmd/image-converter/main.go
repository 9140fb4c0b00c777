package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-converter/internal/api/handlers/image"
	"github.com/aliskhannn/image-converter/internal/api/router"
	"github.com/aliskhannn/image-converter/internal/api/server"
	"github.com/aliskhannn/image-converter/internal/cleaner"
	"github.com/aliskhannn/image-converter/internal/codec"
	"github.com/aliskhannn/image-converter/internal/codec/heif"
	"github.com/aliskhannn/image-converter/internal/codec/webp"
	"github.com/aliskhannn/image-converter/internal/config"
	"github.com/aliskhannn/image-converter/internal/infra/kafka/producer"
	"github.com/aliskhannn/image-converter/internal/lock"
	"github.com/aliskhannn/image-converter/internal/metrics"
	"github.com/aliskhannn/image-converter/internal/processor"
	imagerepo "github.com/aliskhannn/image-converter/internal/repository/image"
	imagesvc "github.com/aliskhannn/image-converter/internal/service/image"
	"github.com/aliskhannn/image-converter/internal/storage/local"
	"github.com/aliskhannn/image-converter/internal/storage/s3"
	"github.com/aliskhannn/image-converter/internal/transform"
)

// variantStore is what both storage backends provide.
type variantStore interface {
	Save(ctx context.Context, dir, name string, data []byte) (string, error)
	List(ctx context.Context, dir string) ([]string, error)
	Delete(ctx context.Context, dir, name string) error
}

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad("./config/config.yml")

	// Codecs: HEIF decode and WebP encode need cgo and are registered here.
	c := codec.New()
	heif.Register(c)
	webp.Register(c)

	storage, err := newStorage(ctx, cfg.Storage)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	opts, err := pipelineOptions(cfg.Pipeline)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("invalid pipeline configuration")
	}

	// Metrics live on a private registry served at /metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New("image_converter", reg)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to register metrics")
	}

	procOptions := []processor.Option{processor.WithObserver(m)}

	// Writes for the same logical name are serialized across replicas with
	// Redis, or within this process otherwise.
	var redisClient *redis.Client
	switch {
	case cfg.Redis.Enabled:
		redisClient, err = lock.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		procOptions = append(procOptions, processor.WithLocker(
			lock.NewRedis(redisClient, "image-converter:lock:", cfg.Redis.LockTTL, cfg.Redis.LockRetry),
		))
	case cfg.Pipeline.SerializeWrites:
		procOptions = append(procOptions, processor.WithLocker(lock.NewKeyed()))
	}

	imageProcessor := processor.New(storage, c, cleaner.New(storage), opts, procOptions...)
	svcOptions := []imagesvc.Option{imagesvc.WithObserver(m)}

	// Conversion history in PostgreSQL (master and slaves).
	var db *dbpg.DB
	if cfg.Database.Enabled {
		db, err = connectDB(cfg.Database)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := imagerepo.Migrate(db.Master); err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to apply migrations")
		}
		svcOptions = append(svcOptions, imagesvc.WithRepository(imagerepo.NewRepository(db)))
	}

	// Conversion events in Kafka.
	var p *producer.Producer
	if cfg.Kafka.Enabled {
		strategy := retry.Strategy{
			Attempts: cfg.Retry.Attempts,
			Delay:    cfg.Retry.Delay,
			Backoff:  cfg.Retry.Backoff,
		}
		p = producer.New(&cfg.Kafka, strategy)
		svcOptions = append(svcOptions, imagesvc.WithPublisher(p))
	}

	service := imagesvc.NewService(c, imageProcessor, svcOptions...)
	imgHandler := image.NewHandler(service, cfg.Server.MaxUploadMB<<20)

	// Start HTTP server in a separate goroutine.
	r := router.Setup(imgHandler, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s := server.New(cfg.Server, r)
	go func() {
		zlog.Logger.Info().Str("addr", s.Addr).Msg("server is running")
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	// Close master and slave databases.
	if db != nil {
		if err := db.Master.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to close master DB")
		}
		for i, s := range db.Slaves {
			if err := s.Close(); err != nil {
				zlog.Logger.Error().Err(err).Int("slave", i).Msg("failed to close slave DB")
			}
		}
	}

	if p != nil {
		if err := p.Client.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
		}
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to close redis client")
		}
	}
}

// newStorage opens the configured variant store.
func newStorage(ctx context.Context, cfg config.Storage) (variantStore, error) {
	switch cfg.Backend {
	case "s3":
		return s3.NewStorage(ctx, cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.BucketName, cfg.S3.UseSSL)
	case "local":
		s, err := local.NewStorage(cfg.BaseDir)
		if err != nil {
			return nil, err
		}
		zlog.Logger.Info().Str("root", s.Root()).Msg("using local storage")
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// connectDB opens the master and slave pools.
func connectDB(cfg config.Database) (*dbpg.DB, error) {
	opts := &dbpg.Options{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}

	// Collect slave DSNs for replica connections.
	slaveDSNs := make([]string, 0, len(cfg.Slaves))
	for _, s := range cfg.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	return dbpg.New(cfg.Master.DSN(), slaveDSNs, opts)
}

// pipelineOptions turns the pipeline section of the config into processor
// options.
func pipelineOptions(cfg config.Pipeline) (processor.Options, error) {
	mode, err := transform.ParseMode(cfg.ThumbnailMode)
	if err != nil {
		return processor.Options{}, err
	}

	opts := processor.Options{
		PrimaryWidth:  cfg.PrimaryWidth,
		PrimaryHeight: cfg.PrimaryHeight,
		Quality:       cfg.Quality,
		ThumbnailMode: mode,
		Background:    cfg.Background,
	}

	for _, t := range cfg.Thumbnails {
		f := codec.ParseFormat(t.Format)
		if f == codec.FormatUnknown {
			return processor.Options{}, fmt.Errorf("thumbnail class %s: %w", t.Dir, codec.ErrUnsupportedFormat)
		}

		opts.Classes = append(opts.Classes, processor.Class{
			Dir:     t.Dir,
			Width:   t.Width,
			Height:  t.Height,
			Format:  f,
			Quality: t.Quality,
		})
	}

	return opts, nil
}
