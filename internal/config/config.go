package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Audio    AudioConfig    `yaml:"audio"`
	STT      STTConfig      `yaml:"stt"`
	LLM      LLMConfig      `yaml:"llm"`
	TTS      TTSConfig      `yaml:"tts"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port            int    `yaml:"port"`
	Address         string `yaml:"address"`
	ReadTimeout     int    `yaml:"read_timeout"`     // seconds
	WriteTimeout    int    `yaml:"write_timeout"`    // seconds
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // seconds
}

// AudioConfig contains audio ingest and output parameters
type AudioConfig struct {
	MaxUploadBytes   int64   `yaml:"max_upload_bytes"`
	MaxDuration      float64 `yaml:"max_duration"` // seconds
	TargetSampleRate int     `yaml:"target_sample_rate"`
	OutputSampleRate int     `yaml:"output_sample_rate"`
}

// STTConfig contains speech-to-text configuration
type STTConfig struct {
	Endpoint      string  `yaml:"endpoint"`
	APIKey        string  `yaml:"api_key"`
	ModelID       string  `yaml:"model_id"`
	Device        string  `yaml:"device"`
	Precision     string  `yaml:"precision"`
	Language      string  `yaml:"language"`
	Timeout       int     `yaml:"timeout"` // seconds
	MaxConcurrent int     `yaml:"max_concurrent"`
	SilenceRMS    float64 `yaml:"silence_rms"`
	MinDuration   float64 `yaml:"min_duration"` // seconds
}

// LLMConfig contains reply generation configuration
type LLMConfig struct {
	APIKey            string `yaml:"api_key"`
	BaseURL           string `yaml:"base_url"`
	ModelID           string `yaml:"model_id"`
	Device            string `yaml:"device"`
	Precision         string `yaml:"precision"`
	SystemPrompt      string `yaml:"system_prompt"`
	HistoryMaxTurns   int    `yaml:"history_max_turns"`
	HistoryCharBudget int    `yaml:"history_char_budget"`
	Timeout           int    `yaml:"timeout"` // seconds
}

// TTSConfig contains speech synthesis configuration
type TTSConfig struct {
	Endpoint                string  `yaml:"endpoint"`
	APIKey                  string  `yaml:"api_key"`
	ModelID                 string  `yaml:"model_id"`
	Device                  string  `yaml:"device"`
	Precision               string  `yaml:"precision"`
	DefaultVoice            string  `yaml:"default_voice"`
	VoiceDir                string  `yaml:"voice_dir"`
	OutputSampleRate        int     `yaml:"output_sample_rate"`
	HighPerformanceMinSpeed float64 `yaml:"high_performance_min_speed"`
	Timeout                 int     `yaml:"timeout"` // seconds
}

// PipelineConfig contains turn orchestration configuration
type PipelineConfig struct {
	PerStageTimeout          int  `yaml:"per_stage_timeout"`    // seconds
	SessionIdleTimeout       int  `yaml:"session_idle_timeout"` // seconds
	RetryTransientGeneration bool `yaml:"retry_transient_generation"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file. API keys left empty in
// the file are filled from the environment (STT_API_KEY, OPENAI_API_KEY,
// TTS_API_KEY).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyEnv() {
	if c.STT.APIKey == "" {
		c.STT.APIKey = os.Getenv("STT_API_KEY")
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.TTS.APIKey == "" {
		c.TTS.APIKey = os.Getenv("TTS_API_KEY")
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.STT.Validate(); err != nil {
		return fmt.Errorf("stt config: %w", err)
	}

	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}

	if err := c.TTS.Validate(); err != nil {
		return fmt.Errorf("tts config: %w", err)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if h.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 second, got %d", h.ReadTimeout)
	}

	if h.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", h.WriteTimeout)
	}

	if h.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", h.ShutdownTimeout)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.MaxUploadBytes < 1024 {
		return fmt.Errorf("max_upload_bytes must be at least 1024, got %d", a.MaxUploadBytes)
	}

	if a.MaxDuration <= 0 {
		return fmt.Errorf("max_duration must be positive, got %f", a.MaxDuration)
	}

	if a.TargetSampleRate < 8000 || a.TargetSampleRate > 48000 {
		return fmt.Errorf("target_sample_rate must be between 8000 and 48000 Hz, got %d", a.TargetSampleRate)
	}

	if a.OutputSampleRate < 8000 || a.OutputSampleRate > 48000 {
		return fmt.Errorf("output_sample_rate must be between 8000 and 48000 Hz, got %d", a.OutputSampleRate)
	}

	return nil
}

// Validate validates STT configuration
func (s *STTConfig) Validate() error {
	if s.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if s.ModelID == "" {
		return fmt.Errorf("model_id cannot be empty")
	}

	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}

	if s.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", s.MaxConcurrent)
	}

	if s.SilenceRMS < 0 || s.SilenceRMS > 1 {
		return fmt.Errorf("silence_rms must be between 0 and 1, got %f", s.SilenceRMS)
	}

	if s.MinDuration < 0 {
		return fmt.Errorf("min_duration cannot be negative, got %f", s.MinDuration)
	}

	return nil
}

// Validate validates LLM configuration
func (l *LLMConfig) Validate() error {
	if l.ModelID == "" {
		return fmt.Errorf("model_id cannot be empty")
	}

	if l.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty (set it in config or via OPENAI_API_KEY)")
	}

	if l.HistoryMaxTurns < 0 {
		return fmt.Errorf("history_max_turns cannot be negative, got %d", l.HistoryMaxTurns)
	}

	if l.HistoryCharBudget < 0 {
		return fmt.Errorf("history_char_budget cannot be negative, got %d", l.HistoryCharBudget)
	}

	if l.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", l.Timeout)
	}

	return nil
}

// Validate validates TTS configuration
func (t *TTSConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.ModelID == "" {
		return fmt.Errorf("model_id cannot be empty")
	}

	if t.DefaultVoice == "" {
		return fmt.Errorf("default_voice cannot be empty")
	}

	if t.OutputSampleRate < 8000 || t.OutputSampleRate > 48000 {
		return fmt.Errorf("output_sample_rate must be between 8000 and 48000 Hz, got %d", t.OutputSampleRate)
	}

	if t.HighPerformanceMinSpeed < 1 {
		return fmt.Errorf("high_performance_min_speed must be at least 1, got %f", t.HighPerformanceMinSpeed)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	return nil
}

// Validate validates pipeline configuration
func (p *PipelineConfig) Validate() error {
	if p.PerStageTimeout < 1 {
		return fmt.Errorf("per_stage_timeout must be at least 1 second, got %d", p.PerStageTimeout)
	}

	if p.SessionIdleTimeout < 0 {
		return fmt.Errorf("session_idle_timeout cannot be negative, got %d", p.SessionIdleTimeout)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetMaxDuration returns the maximum upload duration as a time.Duration
func (a *AudioConfig) GetMaxDuration() time.Duration {
	return time.Duration(a.MaxDuration * float64(time.Second))
}

// GetTimeoutDuration returns the STT request timeout as a time.Duration
func (s *STTConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// GetMinDuration returns the minimum utterance duration as a time.Duration
func (s *STTConfig) GetMinDuration() time.Duration {
	return time.Duration(s.MinDuration * float64(time.Second))
}

// GetTimeoutDuration returns the LLM request timeout as a time.Duration
func (l *LLMConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(l.Timeout) * time.Second
}

// GetTimeoutDuration returns the TTS request timeout as a time.Duration
func (t *TTSConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetPerStageTimeout returns the per-stage timeout as a time.Duration
func (p *PipelineConfig) GetPerStageTimeout() time.Duration {
	return time.Duration(p.PerStageTimeout) * time.Second
}

// GetSessionIdleTimeout returns the session idle timeout as a time.Duration
func (p *PipelineConfig) GetSessionIdleTimeout() time.Duration {
	return time.Duration(p.SessionIdleTimeout) * time.Second
}
