package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/miradorstack/incident-autopilot/internal/utils"
)

const mockToken = "mock-iam-token"

type generationRequest struct {
	ProjectID  string         `json:"project_id"`
	ModelID    string         `json:"model_id"`
	Input      string         `json:"input"`
	Parameters map[string]any `json:"parameters"`
}

func main() {
	addr := flag.String("addr", ":8090", "Listen address")
	flag.Parse()

	logger := utils.NewLogger("info", false).With(slog.String("component", "watsonx-mock"))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/identity/token", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("apikey") == "" {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]any{"errorMessage": "Provided API key could not be found."})
			return
		}
		writeJSON(w, map[string]any{
			"access_token": mockToken,
			"token_type":   "Bearer",
			"expires_in":   3600,
			"expiration":   time.Now().Add(time.Hour).Unix(),
		})
	})

	mux.HandleFunc("/ml/v1/text/generation", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+mockToken {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]any{"errors": []map[string]string{{"code": "authentication_token_not_valid"}}})
			return
		}
		var req generationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]any{"errors": []map[string]string{{"code": "json_validation_error"}}})
			return
		}
		writeJSON(w, map[string]any{
			"model_id":   req.ModelID,
			"created_at": time.Now().UTC().Format(time.RFC3339),
			"results": []map[string]any{{
				"generated_text":        cannedVerdict(alertOf(req.Input)),
				"generated_token_count": 180,
				"stop_reason":           "stop_sequence",
			}},
		})
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           logRequests(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("listening", slog.String("address", *addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

func alertOf(prompt string) string {
	if _, alert, ok := strings.Cut(prompt, "ALERT:"); ok {
		return strings.TrimSpace(alert)
	}
	return strings.TrimSpace(prompt)
}

// cannedVerdict answers like the real model, including its habit of
// wrapping the object in prose. Alerts mentioning "garbage" get no JSON.
func cannedVerdict(alert string) string {
	lower := strings.ToLower(alert)
	if strings.Contains(lower, "garbage") {
		return "I am unable to assess this alert."
	}

	severity, revenue := "MEDIUM", "Medium"
	if strings.Contains(lower, "down") || strings.Contains(lower, "98%") || strings.Contains(lower, "outage") {
		severity, revenue = "HIGH", "High"
	}
	system := "unknown-system"
	if fields := strings.Fields(alert); len(fields) > 0 {
		system = fields[0]
	}

	verdict := map[string]any{
		"detection": map[string]any{
			"severity":   severity,
			"system":     system,
			"pattern":    "resource saturation",
			"escalation": severity == "HIGH",
		},
		"reasoning": map[string]any{
			"rootCause": fmt.Sprintf("Sustained load on %s exhausted available capacity.", system),
			"risks": map[string]string{
				"revenue":    revenue,
				"security":   "Low",
				"operations": "High",
			},
		},
		"action": map[string]any{
			"ticket": "INC-" + time.Now().UTC().Format("0102150405"),
			"email":  "Notified on-call SRE and service owner.",
			"status": "Mitigation in progress",
		},
		"timeline": []string{
			"Alert received",
			"Anomaly classified",
			"Root cause hypothesised",
			"Ticket opened and owners notified",
		},
	}
	data, _ := json.MarshalIndent(verdict, "", "  ")
	return "Here is the incident assessment:\n" + string(data)
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode error", slog.Any("error", err))
	}
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Info("request", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Int("status", rw.status), slog.Duration("duration", time.Since(start)))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
