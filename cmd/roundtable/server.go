package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/roundtable-ai/roundtable/api/handlers"
	"github.com/roundtable-ai/roundtable/config"
	"github.com/roundtable-ai/roundtable/gateway"
	"github.com/roundtable-ai/roundtable/internal/metrics"
	"github.com/roundtable-ai/roundtable/orchestrator"
	"github.com/roundtable-ai/roundtable/store"
)

// backendStore is the single object serving both store roles; every backend
// implements both.
type backendStore interface {
	store.ConversationStore
	store.PersonalityStore
}

func buildStore(cfg config.StoreConfig) (backendStore, error) {
	switch cfg.Backend {
	case store.BackendMemory:
		return store.NewMemoryStore(), nil
	case store.BackendRedis:
		return store.NewRedisStore(cfg.Redis), nil
	case store.BackendSQL:
		return store.NewGormStore(cfg.Database)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func buildGenerator(cfg *config.Config, logger *zap.Logger) gateway.Generator {
	registry := gateway.NewRegistry(nil)
	for _, p := range cfg.Providers {
		registry.Register(p.Name, gateway.NewOpenAICompatible(p, logger))
	}
	return registry
}

// seedPersonalities upserts the configured personalities at boot so the
// engine and API see them immediately.
func seedPersonalities(ctx context.Context, s store.PersonalityStore, cfg *config.Config, logger *zap.Logger) error {
	for _, p := range cfg.Personalities {
		if err := s.SavePersonality(ctx, p); err != nil {
			return fmt.Errorf("seed personality %s: %w", p.NameID, err)
		}
	}
	if len(cfg.Personalities) > 0 {
		logger.Info("personalities seeded", zap.Int("count", len(cfg.Personalities)))
	}
	return nil
}

func runServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	backend, err := buildStore(cfg.Store)
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := backend.Ping(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	if err := seedPersonalities(ctx, backend, cfg, logger); err != nil {
		return err
	}

	collector := metrics.NewCollector("roundtable")
	registry := orchestrator.NewRegistry(cfg.Observers)
	engine := orchestrator.New(cfg.Orchestrator, orchestrator.Deps{
		Conversations: backend,
		Personalities: backend,
		Generator:     buildGenerator(cfg, logger),
		Registry:      registry,
		Composer:      orchestrator.NewComposer(cfg.GuidanceTable(), cfg.Orchestrator.PreviewLength),
		Metrics:       collector,
	}, logger)
	defer engine.Close()

	mux := handlers.NewMux(handlers.Deps{
		Conversations: backend,
		Personalities: backend,
		Engine:        engine,
		Registry:      registry,
		Observers:     cfg.Observers,
		Logger:        logger,
	})

	var limiter *rate.Limiter
	if cfg.Server.RateLimit > 0 {
		burst := cfg.Server.RateBurst
		if burst <= 0 {
			burst = int(cfg.Server.RateLimit)
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), burst)
	}

	api := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: Chain(mux,
			Recovery(logger),
			RequestLogger(logger),
			HTTPMetrics(collector),
			APIKeyAuth(cfg.Server.APIKey),
			RateLimit(limiter),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("GET /metrics", collector.Handler())
		metricsSrv = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: metricsMux}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api server listening", zap.String("addr", cfg.Server.Addr))
		if err := api.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if metricsSrv != nil {
		g.Go(func() error {
			logger.Info("metrics server listening", zap.String("addr", cfg.Server.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return api.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
