package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/EvanGks/vision-voice-multimodal-app/internal/audio"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/config"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/llm"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/metrics"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/model"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/pipeline"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/server"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/stt"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/tts"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "vision-voice-multimodal-app"
	serviceVersion    = "1.0.0"
)

// defaultVoices is the built-in catalog used when no voice directory is
// configured.
var defaultVoices = []string{
	"af_heart", "af_bella", "af_nicole", "am_adam", "am_michael",
	"bf_emma", "bf_isabella", "bm_george", "bm_lewis",
	"ef_dora", "em_alex", "ff_siwis", "hf_alpha", "if_sara",
	"jf_alpha", "pf_dora", "zf_xiaobei",
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load environment overrides (API keys) before the config file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("http_port", cfg.HTTP.Port),
		slog.String("http_address", cfg.HTTP.Address),
		slog.Int64("max_upload_bytes", cfg.Audio.MaxUploadBytes),
		slog.Int("target_sample_rate", cfg.Audio.TargetSampleRate),
		slog.String("stt_model", cfg.STT.ModelID),
		slog.String("llm_model", cfg.LLM.ModelID),
		slog.String("tts_model", cfg.TTS.ModelID),
		slog.String("default_voice", cfg.TTS.DefaultVoice),
		slog.Int("per_stage_timeout", cfg.Pipeline.PerStageTimeout),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Audio codec for uploads and reply encoding
	codec := audio.NewCodec(audio.CodecConfig{
		MaxUploadBytes: int(cfg.Audio.MaxUploadBytes),
		MaxDuration:    cfg.Audio.GetMaxDuration(),
		TargetRate:     cfg.Audio.TargetSampleRate,
		OutputRate:     cfg.Audio.OutputSampleRate,
	})

	// Voice catalog
	var voices *tts.Catalog
	if cfg.TTS.VoiceDir != "" {
		voices, err = tts.LoadCatalog(cfg.TTS.VoiceDir)
		if err != nil {
			logger.Error("Failed to load voice catalog", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		voices = tts.NewCatalog(defaultVoices)
	}
	logger.Info("Voice catalog ready", slog.Int("voices", len(voices.Voices())))

	// Model registry with lazy capability loaders
	registry := model.NewRegistry(logger, map[model.Kind]model.Loader{
		model.KindTranscriber: withLoadMetrics(appMetrics, model.KindTranscriber,
			func(ctx context.Context, mc model.Config) (model.LoadResult, error) {
				transcriber, err := stt.NewHTTPTranscriber(stt.ClientConfig{
					Endpoint:      cfg.STT.Endpoint,
					APIKey:        cfg.STT.APIKey,
					ModelID:       mc.ModelID,
					Language:      cfg.STT.Language,
					Timeout:       cfg.STT.GetTimeoutDuration(),
					MaxConcurrent: cfg.STT.MaxConcurrent,
				})
				if err != nil {
					return model.LoadResult{}, err
				}
				return model.LoadResult{Capability: transcriber, Reentrant: true}, nil
			}),
		model.KindGenerator: withLoadMetrics(appMetrics, model.KindGenerator,
			func(ctx context.Context, mc model.Config) (model.LoadResult, error) {
				generator, err := llm.NewOpenAIGenerator(cfg.LLM.APIKey, mc.ModelID)
				if err != nil {
					return model.LoadResult{}, err
				}
				return model.LoadResult{Capability: generator, Reentrant: true}, nil
			}),
		model.KindSynthesizer: withLoadMetrics(appMetrics, model.KindSynthesizer,
			func(ctx context.Context, mc model.Config) (model.LoadResult, error) {
				synthesizer, err := tts.NewHTTPSynthesizer(tts.ClientConfig{
					Endpoint: cfg.TTS.Endpoint,
					APIKey:   cfg.TTS.APIKey,
					ModelID:  mc.ModelID,
					Timeout:  cfg.TTS.GetTimeoutDuration(),
				})
				if err != nil {
					return model.LoadResult{}, err
				}
				return model.LoadResult{Capability: synthesizer, Reentrant: true}, nil
			}),
	})
	logger.Info("Model registry initialized")

	// Pipeline stages
	sttStage := stt.NewStage(registry, stt.StageConfig{
		Model: model.Config{
			ModelID:   cfg.STT.ModelID,
			Device:    cfg.STT.Device,
			Precision: cfg.STT.Precision,
		},
		SilenceRMS:  cfg.STT.SilenceRMS,
		MinDuration: cfg.STT.GetMinDuration(),
	}, logger)

	llmStage := llm.NewStage(registry, llm.StageConfig{
		Model: model.Config{
			ModelID:   cfg.LLM.ModelID,
			Device:    cfg.LLM.Device,
			Precision: cfg.LLM.Precision,
		},
		SystemPrompt:      cfg.LLM.SystemPrompt,
		HistoryCharBudget: cfg.LLM.HistoryCharBudget,
	}, logger)

	ttsStage := tts.NewStage(registry, tts.StageConfig{
		Model: model.Config{
			ModelID:   cfg.TTS.ModelID,
			Device:    cfg.TTS.Device,
			Precision: cfg.TTS.Precision,
		},
		DefaultVoice:            cfg.TTS.DefaultVoice,
		OutputRate:              cfg.TTS.OutputSampleRate,
		HighPerformanceMinSpeed: cfg.TTS.HighPerformanceMinSpeed,
	}, logger)

	// Session store and turn orchestrator
	sessions := pipeline.NewSessions(logger, cfg.LLM.HistoryMaxTurns, cfg.Pipeline.GetSessionIdleTimeout())

	orchestrator := pipeline.NewOrchestrator(codec, sttStage, llmStage, ttsStage, sessions,
		pipeline.Config{
			PerStageTimeout:          cfg.Pipeline.GetPerStageTimeout(),
			RetryTransientGeneration: cfg.Pipeline.RetryTransientGeneration,
			OutputFormat:             "wav",
		}, logger, appMetrics)
	logger.Info("Turn orchestrator initialized",
		slog.Duration("per_stage_timeout", cfg.Pipeline.GetPerStageTimeout()),
		slog.Duration("session_idle_timeout", cfg.Pipeline.GetSessionIdleTimeout()),
	)

	// Initialize HTTP API server
	httpServer := server.NewHTTPServer(cfg.HTTP, logger, cfg, orchestrator, codec,
		sttStage, llmStage, ttsStage, voices, registry, appMetrics)
	logger.Info("HTTP API server initialized",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop the session janitor and release loaded models
	sessions.Stop()
	if err := registry.Close(); err != nil {
		logger.Error("Error closing model registry", slog.String("error", err.Error()))
	}

	// Get final statistics
	stats := registry.GetStats()
	logger.Info("Final registry statistics",
		slog.Uint64("model_loads", stats.Loads),
		slog.Uint64("cache_hits", stats.CacheHits),
		slog.Uint64("load_failures", stats.Failures),
	)

	logger.Info("Service stopped")
}

// withLoadMetrics wraps a model loader with load counters.
func withLoadMetrics(m *metrics.Metrics, kind model.Kind, loader model.Loader) model.Loader {
	return func(ctx context.Context, mc model.Config) (model.LoadResult, error) {
		result, err := loader(ctx, mc)
		if err != nil {
			m.RecordModelLoadFailure(string(kind))
			return result, err
		}
		m.RecordModelLoad(string(kind))
		return result, nil
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
