package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/miradorstack/incident-autopilot/internal/metrics"
	"github.com/miradorstack/incident-autopilot/internal/models"
	"github.com/miradorstack/incident-autopilot/internal/utils"
)

// ErrEmptyAlert is returned when the alert is blank after trimming.
var ErrEmptyAlert = errors.New("alert must not be empty")

// Generator produces a raw model response for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (models.RawOrchestrationResponse, error)
}

// OrchestrateService turns alerts into model prompts and passes the raw
// response back to the caller.
type OrchestrateService struct {
	logger    *slog.Logger
	generator Generator
	latencies *utils.LatencyTracker
}

// NewOrchestrateService constructs the orchestration facade.
func NewOrchestrateService(logger *slog.Logger, generator Generator) *OrchestrateService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrchestrateService{
		logger:    logger,
		generator: generator,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Orchestrate prompts the model with alert and returns its response untouched.
func (s *OrchestrateService) Orchestrate(ctx context.Context, alert string) (models.RawOrchestrationResponse, error) {
	alert = strings.TrimSpace(alert)
	if alert == "" {
		return nil, utils.NewAppError("orchestrate", "alert is required", ErrEmptyAlert)
	}
	if s.generator == nil {
		return nil, utils.NewAppError("orchestrate", "model backend not configured", nil)
	}

	s.logger.Debug("orchestrate called", slog.Int("alert_len", len(alert)))

	start := time.Now()
	resp, err := s.generator.Generate(ctx, BuildPrompt(alert))
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveOrchestration(duration, metrics.OutcomeError)
		s.logger.Error("model generation failed", slog.Any("error", err))
		return nil, utils.NewAppError("orchestrate", "model backend unavailable", err)
	}

	s.latencies.Observe(duration)
	metrics.ObserveOrchestration(duration, metrics.OutcomeSuccess)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		summary := s.latencies.Summary()
		s.logger.Info("orchestration latency", slog.Duration("p50", summary.P50), slog.Duration("p95", summary.P95), slog.Int("samples", summary.Samples))
	}

	s.logger.Debug("model raw response", slog.Any("response", resp))
	return resp, nil
}

// Send lets the service stand in for a remote orchestrator inside one process.
func (s *OrchestrateService) Send(ctx context.Context, alert string) (models.RawOrchestrationResponse, error) {
	return s.Orchestrate(ctx, alert)
}
