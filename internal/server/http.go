package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/EvanGks/vision-voice-multimodal-app/internal/audio"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/config"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/llm"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/metrics"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/model"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/pipeline"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/stt"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/tts"
)

// HTTPServer provides the HTTP API for conversational turns and monitoring
type HTTPServer struct {
	server       *http.Server
	logger       *slog.Logger
	config       *config.Config
	orchestrator *pipeline.Orchestrator
	codec        *audio.Codec
	transcriber  *stt.Stage
	generator    *llm.Stage
	synthesizer  *tts.Stage
	voices       *tts.Catalog
	registry     *model.Registry
	metrics      *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	orchestrator *pipeline.Orchestrator, codec *audio.Codec,
	transcriber *stt.Stage, generator *llm.Stage, synthesizer *tts.Stage,
	voices *tts.Catalog, registry *model.Registry, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:       logger,
		config:       appConfig,
		orchestrator: orchestrator,
		codec:        codec,
		transcriber:  transcriber,
		generator:    generator,
		synthesizer:  synthesizer,
		voices:       voices,
		registry:     registry,
		metrics:      m,
		startTime:    time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Pipeline endpoints
	mux.HandleFunc("/api/turn", h.withMetrics("/api/turn", h.handleTurn))
	mux.HandleFunc("/api/transcribe", h.withMetrics("/api/transcribe", h.handleTranscribe))
	mux.HandleFunc("/api/generate", h.withMetrics("/api/generate", h.handleGenerate))
	mux.HandleFunc("/api/speak", h.withMetrics("/api/speak", h.handleSpeak))

	// Voice catalog
	mux.HandleFunc("/api/voices", h.withMetrics("/api/voices", h.handleVoices))
	mux.HandleFunc("/api/voices_by_language", h.withMetrics("/api/voices_by_language", h.handleVoicesByLanguage))

	// Session monitoring
	mux.HandleFunc("/api/sessions", h.withMetrics("/api/sessions", h.handleSessions))
	mux.HandleFunc("/api/sessions/", h.withMetrics("/api/sessions/{id}", h.handleSessionDetail))

	// Service monitoring
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "vision-voice-multimodal-app",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"pipeline": map[string]interface{}{
				"status":          "running",
				"active_sessions": h.orchestrator.Sessions().Count(),
			},
			"voices": map[string]interface{}{
				"status": "loaded",
				"count":  len(h.voices.Voices()),
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (API keys intentionally omitted)
	sanitizedConfig := map[string]interface{}{
		"http": map[string]interface{}{
			"port":    h.config.HTTP.Port,
			"address": h.config.HTTP.Address,
		},
		"audio": map[string]interface{}{
			"max_upload_bytes":   h.config.Audio.MaxUploadBytes,
			"max_duration":       h.config.Audio.MaxDuration,
			"target_sample_rate": h.config.Audio.TargetSampleRate,
			"output_sample_rate": h.config.Audio.OutputSampleRate,
		},
		"stt": map[string]interface{}{
			"endpoint":       h.config.STT.Endpoint,
			"model_id":       h.config.STT.ModelID,
			"device":         h.config.STT.Device,
			"language":       h.config.STT.Language,
			"timeout":        h.config.STT.Timeout,
			"max_concurrent": h.config.STT.MaxConcurrent,
		},
		"llm": map[string]interface{}{
			"model_id":            h.config.LLM.ModelID,
			"history_max_turns":   h.config.LLM.HistoryMaxTurns,
			"history_char_budget": h.config.LLM.HistoryCharBudget,
			"timeout":             h.config.LLM.Timeout,
		},
		"tts": map[string]interface{}{
			"endpoint":           h.config.TTS.Endpoint,
			"model_id":           h.config.TTS.ModelID,
			"default_voice":      h.config.TTS.DefaultVoice,
			"output_sample_rate": h.config.TTS.OutputSampleRate,
			"timeout":            h.config.TTS.Timeout,
		},
		"pipeline": map[string]interface{}{
			"per_stage_timeout":          h.config.Pipeline.PerStageTimeout,
			"session_idle_timeout":       h.config.Pipeline.SessionIdleTimeout,
			"retry_transient_generation": h.config.Pipeline.RetryTransientGeneration,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"sessions": map[string]interface{}{
			"active_count": h.orchestrator.Sessions().Count(),
		},
		"models": h.registry.GetStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Vision Voice Multimodal App",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                        "API documentation",
			"POST /api/turn":               "Run a full conversational turn on uploaded audio",
			"POST /api/transcribe":         "Transcribe uploaded audio",
			"POST /api/generate":           "Generate a reply for user text",
			"POST /api/speak":              "Synthesize speech for text",
			"GET /api/voices":              "List available voices",
			"GET /api/voices_by_language":  "List voices grouped by language",
			"GET /api/sessions":            "List active sessions",
			"GET /api/sessions/{id}":       "Get session history",
			"DELETE /api/sessions/{id}":    "Drop a session",
			"GET /health":                  "Service health check",
			"GET /config":                  "Get service configuration",
			"GET /stats":                   "Get service statistics",
			"GET /metrics":                 "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
