package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"bedrockchat/internal/config"
	"bedrockchat/internal/crypto"
	"bedrockchat/internal/httpapi"
	"bedrockchat/internal/metrics"
	"bedrockchat/internal/providers/bedrock"
	"bedrockchat/internal/providers/registry"
	"bedrockchat/internal/queue"
	"bedrockchat/internal/storage"
	"bedrockchat/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level)
	log.Info().
		Str("addr", cfg.HTTP.ListenAddr).
		Str("region", cfg.Bedrock.Region).
		Str("default_model", cfg.Models.DefaultAlias).
		Str("unknown_model_policy", string(cfg.Models.Policy)).
		Msg("starting bedrock chat gateway")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	catalog, err := loadCatalog(cfg.Models)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load model catalog")
	}
	log.Info().Int("models", len(catalog.List())).Str("default", catalog.Default().Alias).Msg("model catalog loaded")

	m := metrics.Global()
	client := bedrock.New(bedrock.Config{
		Factory: bedrock.RuntimeFactory(cfg.Bedrock.Region, cfg.Bedrock.Profile),
		Options: bedrock.Options{
			MaxTokens:   cfg.Bedrock.MaxTokens,
			Temperature: cfg.Bedrock.Temperature,
			TopP:        cfg.Bedrock.TopP,
		},
		Logger:  log.Logger.With().Str("component", "bedrock").Logger(),
		Metrics: m,
	})

	svcCfg := httpapi.Config{
		Catalog:       catalog,
		Provider:      client,
		Logger:        log.Logger,
		Metrics:       m,
		InvokeTimeout: cfg.Bedrock.InvokeTimeout,
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rdb.Close()
		svcCfg.RateLimiter = queue.NewRateLimiter(rdb, cfg.Rate.PerHour)
		log.Info().Int64("per_hour", cfg.Rate.PerHour).Msg("rate limiting enabled")
	}

	errCh := make(chan error, 2)
	// Chat log writers stop only after the HTTP server has shut down.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	workerDone := make(chan struct{})
	close(workerDone)

	if cfg.DB.DSN != "" {
		store, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, cfg.DB.AutoMigrate)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize storage")
		}
		defer store.Close()

		var sealer *crypto.Sealer
		if cfg.Crypto.Enabled() {
			sealer, err = crypto.NewSealer(cfg.Crypto.CurrentKeyID, cfg.Crypto.Keys)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to initialize prompt sealer")
			}
		}

		w := worker.New(worker.Config{
			Sink:    store,
			Sealer:  sealer,
			Buffer:  cfg.ChatLog.Buffer,
			Logger:  log.Logger.With().Str("component", "chat_log").Logger(),
			Metrics: m,
		})
		svcCfg.ChatLog = w
		svcCfg.History = store

		workerDone = make(chan struct{})
		go func() {
			defer close(workerDone)
			if err := w.Start(workerCtx, cfg.ChatLog.Workers); err != nil && workerCtx.Err() == nil {
				errCh <- fmt.Errorf("chat log worker failed: %w", err)
			}
		}()
		log.Info().
			Str("driver", cfg.DB.Driver).
			Int("workers", cfg.ChatLog.Workers).
			Bool("prompts_sealed", sealer != nil).
			Msg("chat log enabled")
	}

	service := httpapi.NewService(svcCfg)
	httpServer := &http.Server{
		Addr: cfg.HTTP.ListenAddr,
		Handler: httpapi.NewRouter(service, httpapi.RouterConfig{
			HealthPath:        cfg.HTTP.HealthPath,
			MetricsPath:       cfg.HTTP.MetricsPath,
			AllowedOrigins:    cfg.HTTP.AllowedOrigins,
			TrustProxyHeaders: cfg.HTTP.TrustProxyHeaders,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	shutdown(shutdownCtx, httpServer, stopWorker, workerDone)

	log.Info().Msg("stopped")
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown stops accepting requests, waits for in-flight ones, and only then
// lets the chat log workers drain and exit.
func shutdown(ctx context.Context, srv shutdowner, stopWorker context.CancelFunc, workerDone <-chan struct{}) {
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}
	stopWorker()
	select {
	case <-workerDone:
	case <-ctx.Done():
		log.Warn().Msg("chat log worker did not drain in time")
	}
}

func loadCatalog(cfg config.ModelsConfig) (*registry.Registry, error) {
	if cfg.File == "" {
		return registry.New(cfg.DefaultAlias, cfg.Policy, registry.Builtin()...)
	}
	return registry.LoadFile(cfg.File, cfg.DefaultAlias, cfg.Policy, registry.Builtin())
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
