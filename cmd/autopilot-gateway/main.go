package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/incident-autopilot/internal/api"
	"github.com/miradorstack/incident-autopilot/internal/cache"
	"github.com/miradorstack/incident-autopilot/internal/config"
	"github.com/miradorstack/incident-autopilot/internal/engine"
	"github.com/miradorstack/incident-autopilot/internal/extract"
	"github.com/miradorstack/incident-autopilot/internal/metrics"
	"github.com/miradorstack/incident-autopilot/internal/repo"
	"github.com/miradorstack/incident-autopilot/internal/services"
	"github.com/miradorstack/incident-autopilot/internal/session"
	"github.com/miradorstack/incident-autopilot/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting incident-autopilot gateway",
		slog.String("http_address", cfg.Server.Address),
		slog.String("grpc_address", cfg.Server.GRPCAddress),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	tokenCache := newTokenCache(cfg.Cache, logger)
	defer tokenCache.Close()

	iam := repo.NewIAMTokenSource(logger, cfg.Watsonx.IAMURL, cfg.Watsonx.APIKey, tokenCache, cfg.Watsonx.Timeout)
	watsonx := repo.NewWatsonxClient(repo.WatsonxConfig{
		BaseURL:   cfg.Watsonx.URL,
		ProjectID: cfg.Watsonx.ProjectID,
		ModelID:   cfg.Watsonx.ModelID,
		Version:   cfg.Watsonx.Version,
		Params: repo.GenerationParams{
			MaxNewTokens:  cfg.Watsonx.MaxNewTokens,
			Temperature:   cfg.Watsonx.Temperature,
			StopSequences: cfg.Watsonx.StopSequences,
		},
		Timeout: cfg.Watsonx.Timeout,
	}, repo.NewReusableTokenSource(iam))
	if cfg.Watsonx.URL == "" || cfg.Watsonx.APIKey == "" {
		logger.Warn("watsonx credentials incomplete; orchestration requests will fail")
	}

	orchestrator := services.NewOrchestrateService(logger, watsonx)

	governance, err := engine.NewGovernanceEngine(cfg.Rules.Path, logger)
	if err != nil {
		logger.Error("failed to load governance rules", slog.Any("error", err))
		os.Exit(1)
	}
	assessor, err := extract.NewAssessor()
	if err != nil {
		logger.Error("failed to compile result schemas", slog.Any("error", err))
		os.Exit(1)
	}
	timings := engine.StageTimings{
		ReasoningDelay:  cfg.Pipeline.ReasoningDelay,
		GovernanceDelay: cfg.Pipeline.GovernanceDelay,
	}
	sessions := func(notifier session.Notifier) *session.Session {
		controller := engine.NewStageController(logger, engine.WallClock{}, timings)
		return session.New(logger, orchestrator, controller, session.Options{
			Assessor:   assessor,
			Governance: governance,
			Notifier:   notifier,
		})
	}

	grpcServer, err := api.NewServer(cfg.Server, orchestrator, logger)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.NewHTTPHandler(cfg.Server, orchestrator, sessions, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("gRPC server listening", slog.String("address", grpcServer.Address()))
		return grpcServer.Start()
	})
	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer cancel()

		grpcServer.Shutdown(shutdownCtx)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown", slog.Any("error", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown", slog.Any("error", err))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("gateway exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("incident-autopilot gateway stopped")
}

func newTokenCache(cfg config.CacheConfig, logger *slog.Logger) cache.Provider {
	if !cfg.Enabled || cfg.Addr == "" {
		return cache.NewMemoryProvider()
	}
	provider, err := cache.NewRedisProvider(cache.RedisConfig{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		TLS:          cfg.TLS,
		KeyPrefix:    cfg.KeyPrefix,
	})
	if err != nil {
		logger.Warn("redis token cache unavailable, using in-process cache", slog.Any("error", err))
		return cache.NewMemoryProvider()
	}
	return provider
}
