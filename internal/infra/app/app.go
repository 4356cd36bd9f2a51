package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/guyyagil/CineVerse/internal/core/port"
	"github.com/guyyagil/CineVerse/internal/infra/config"
	"github.com/guyyagil/CineVerse/internal/infra/database"
	kafkainfra "github.com/guyyagil/CineVerse/internal/infra/kafka"
	"github.com/guyyagil/CineVerse/internal/infra/logger"
	redisinfra "github.com/guyyagil/CineVerse/internal/infra/redis"
	"github.com/guyyagil/CineVerse/internal/infra/security"
	"github.com/guyyagil/CineVerse/internal/infra/telemetry"
	postgresrepo "github.com/guyyagil/CineVerse/internal/repository/postgres"
	redisrepo "github.com/guyyagil/CineVerse/internal/repository/redis"
	"github.com/guyyagil/CineVerse/internal/usecase"
)

// Application owns the daemon's wiring: the session services plus the
// metrics endpoint and the retention purge loop.
type Application struct {
	cfg      *config.AppConfig
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	sessions *usecase.SessionService
	registry *prometheus.Registry
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	keyProvider, err := security.NewFileKeyProvider(cfg.Tokens.KeyDirectory, cfg.Tokens.SigningKID)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init key provider: %w", err)
	}

	codec, err := security.NewCodec(keyProvider, cfg.App.Name)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init token codec: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	revocationCache := redisrepo.NewFamilyRevocationStore(redisClient.Client(), cfg.Redis.FamilyRevocationPrefix)

	var (
		eventPublisher port.EventPublisher
		producer       *kafkainfra.Producer
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	store := postgresrepo.NewFamilyRepository(pool)
	principals := postgresrepo.NewPrincipalRepository(pool)

	revocationService := usecase.NewRevocationService(cfg, store, revocationCache, eventPublisher, metrics, log)
	rotationService := usecase.NewRotationService(cfg, store, revocationCache, revocationService, eventPublisher, metrics, log)
	sessionService := usecase.NewSessionService(cfg, codec, principals, store, rotationService, revocationService, metrics, log)

	return &Application{
		cfg:      cfg,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
		sessions: sessionService,
		registry: registry,
	}, nil
}

// Sessions exposes the wired session facade.
func (a *Application) Sessions() *usecase.SessionService {
	return a.sessions
}

// Run serves /metrics and /healthz and drives the retention purge loop until
// the context is canceled.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.pool.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := a.redis.HealthCheck(r.Context()); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.Telemetry.MetricsHost, a.cfg.Telemetry.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting session daemon",
		zap.String("env", a.cfg.App.Env),
		zap.String("metrics_address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run metrics server: %w", err)
		}
	}()

	go a.runPurgeLoop(ctx)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

func (a *Application) runPurgeLoop(ctx context.Context) {
	interval := a.cfg.Tokens.PurgeInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			purged, err := a.sessions.PurgeExpired(ctx)
			if err != nil {
				a.logger.Error("retention purge failed", zap.Error(err))
				continue
			}
			if purged > 0 {
				a.logger.Info("retention purge completed", zap.Int("purged", purged))
			}
		case <-ctx.Done():
			return
		}
	}
}
