package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:            8080,
			Address:         "0.0.0.0",
			ReadTimeout:     30,
			WriteTimeout:    60,
			ShutdownTimeout: 10,
		},
		Audio: AudioConfig{
			MaxUploadBytes:   10 << 20,
			MaxDuration:      30.0,
			TargetSampleRate: 16000,
			OutputSampleRate: 24000,
		},
		STT: STTConfig{
			Endpoint:      "http://localhost:9000/transcribe",
			APIKey:        "stt-key",
			ModelID:       "whisper-base",
			Device:        "cpu",
			Language:      "en",
			Timeout:       30,
			MaxConcurrent: 4,
			SilenceRMS:    0.01,
			MinDuration:   0.1,
		},
		LLM: LLMConfig{
			APIKey:            "sk-test",
			ModelID:           "gpt-4o-mini",
			SystemPrompt:      "You are a voice assistant.",
			HistoryMaxTurns:   20,
			HistoryCharBudget: 4000,
			Timeout:           30,
		},
		TTS: TTSConfig{
			Endpoint:                "http://localhost:9100/synthesize",
			ModelID:                 "kokoro",
			DefaultVoice:            "af_heart",
			OutputSampleRate:        24000,
			HighPerformanceMinSpeed: 1.2,
			Timeout:                 30,
		},
		Pipeline: PipelineConfig{
			PerStageTimeout:    30,
			SessionIdleTimeout: 1800,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestValidConfigPasses(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Valid config should pass validation: %v", err)
	}
}

func TestHTTPConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.HTTP.Port = 0 }},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty address", func(c *Config) { c.HTTP.Address = "" }},
		{"zero read timeout", func(c *Config) { c.HTTP.ReadTimeout = 0 }},
		{"zero shutdown timeout", func(c *Config) { c.HTTP.ShutdownTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestAudioConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"tiny upload limit", func(c *Config) { c.Audio.MaxUploadBytes = 100 }},
		{"zero max duration", func(c *Config) { c.Audio.MaxDuration = 0 }},
		{"target rate too low", func(c *Config) { c.Audio.TargetSampleRate = 4000 }},
		{"output rate too high", func(c *Config) { c.Audio.OutputSampleRate = 96000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestStageConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty stt endpoint", func(c *Config) { c.STT.Endpoint = "" }},
		{"empty stt model", func(c *Config) { c.STT.ModelID = "" }},
		{"stt silence rms above one", func(c *Config) { c.STT.SilenceRMS = 1.5 }},
		{"empty llm api key", func(c *Config) { c.LLM.APIKey = "" }},
		{"empty llm model", func(c *Config) { c.LLM.ModelID = "" }},
		{"negative history budget", func(c *Config) { c.LLM.HistoryCharBudget = -1 }},
		{"empty tts voice", func(c *Config) { c.TTS.DefaultVoice = "" }},
		{"high perf speed below one", func(c *Config) { c.TTS.HighPerformanceMinSpeed = 0.5 }},
		{"zero stage timeout", func(c *Config) { c.Pipeline.PerStageTimeout = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
http:
  port: 8080
  address: "0.0.0.0"
  read_timeout: 30
  write_timeout: 60
  shutdown_timeout: 10

audio:
  max_upload_bytes: 10485760
  max_duration: 30.0
  target_sample_rate: 16000
  output_sample_rate: 24000

stt:
  endpoint: "http://localhost:9000/transcribe"
  api_key: "stt-key"
  model_id: "whisper-base"
  device: "cpu"
  language: "en"
  timeout: 30
  max_concurrent: 4
  silence_rms: 0.01
  min_duration: 0.1

llm:
  api_key: "sk-test"
  model_id: "gpt-4o-mini"
  system_prompt: "You are a voice assistant."
  history_max_turns: 20
  history_char_budget: 4000
  timeout: 30

tts:
  endpoint: "http://localhost:9100/synthesize"
  model_id: "kokoro"
  default_voice: "af_heart"
  output_sample_rate: 24000
  high_performance_min_speed: 1.2
  timeout: 30

pipeline:
  per_stage_timeout: 30
  session_idle_timeout: 1800
  retry_transient_generation: true

logging:
  level: "debug"
  format: "text"
  output: "stdout"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTP.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.HTTP.Port)
	}
	if cfg.Audio.TargetSampleRate != 16000 {
		t.Errorf("Expected target rate 16000, got %d", cfg.Audio.TargetSampleRate)
	}
	if cfg.LLM.HistoryCharBudget != 4000 {
		t.Errorf("Expected char budget 4000, got %d", cfg.LLM.HistoryCharBudget)
	}
	if !cfg.Pipeline.RetryTransientGeneration {
		t.Error("Expected retry_transient_generation true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("{not yaml: ["), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestAPIKeyFromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg := validConfig()
	cfg.LLM.APIKey = ""
	cfg.applyEnv()

	if cfg.LLM.APIKey != "sk-from-env" {
		t.Errorf("Expected key from environment, got %q", cfg.LLM.APIKey)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := validConfig()

	if got := cfg.Audio.GetMaxDuration(); got != 30*time.Second {
		t.Errorf("Expected 30s max duration, got %s", got)
	}
	if got := cfg.STT.GetMinDuration(); got != 100*time.Millisecond {
		t.Errorf("Expected 100ms min duration, got %s", got)
	}
	if got := cfg.Pipeline.GetPerStageTimeout(); got != 30*time.Second {
		t.Errorf("Expected 30s stage timeout, got %s", got)
	}
	if got := cfg.Pipeline.GetSessionIdleTimeout(); got != 30*time.Minute {
		t.Errorf("Expected 30m idle timeout, got %s", got)
	}
}
