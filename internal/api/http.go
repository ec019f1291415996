package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/miradorstack/incident-autopilot/internal/config"
	"github.com/miradorstack/incident-autopilot/internal/services"
	"github.com/miradorstack/incident-autopilot/internal/utils"
)

const maxRequestBytes = 64 << 10

type orchestrateRequest struct {
	Alert string `json:"alert"`
}

// NewHTTPHandler builds the gateway's HTTP surface: the orchestration
// endpoint, a liveness probe and the live session stream.
func NewHTTPHandler(cfg config.ServerConfig, svc Orchestrator, sessions SessionFactory, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	limiter := NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("POST /api/orchestrate", limiter.Middleware(orchestrateHandlerHTTP(svc, logger)))
	if sessions != nil {
		mux.Handle("GET /api/session/ws", limiter.Middleware(sessionStreamHandler(cfg.AllowedOrigins, sessions, logger)))
	}
	return CORS(cfg.AllowedOrigins, mux)
}

func orchestrateHandlerHTTP(svc Orchestrator, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req orchestrateRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "request body must be a JSON object with an alert field")
			return
		}

		resp, err := svc.Orchestrate(r.Context(), req.Alert)
		if err != nil {
			if errors.Is(err, services.ErrEmptyAlert) {
				writeError(w, http.StatusBadRequest, utils.PublicMessage(err, "alert is required"))
				return
			}
			logger.Warn("orchestrate request failed", slog.Any("error", err))
			writeError(w, http.StatusBadGateway, utils.PublicMessage(err, "orchestration failed"))
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
