package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/EvanGks/vision-voice-multimodal-app/internal/audio"
)

// ClientConfig contains synthesis backend client configuration.
type ClientConfig struct {
	Endpoint string
	APIKey   string
	ModelID  string
	Timeout  time.Duration
}

// HTTPSynthesizer sends synthesis requests to an HTTP TTS API that returns
// WAV audio in the response body.
type HTTPSynthesizer struct {
	config     ClientConfig
	httpClient *http.Client
}

// synthesisPayload is the JSON request body for the TTS API.
type synthesisPayload struct {
	Text    string  `json:"text"`
	ModelID string  `json:"model_id,omitempty"`
	Voice   string  `json:"voice"`
	Speed   float64 `json:"speed,omitempty"`
}

// NewHTTPSynthesizer creates a synthesis API client.
func NewHTTPSynthesizer(config ClientConfig) (*HTTPSynthesizer, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	return &HTTPSynthesizer{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Synthesize posts the text and decodes the returned WAV into a buffer.
func (c *HTTPSynthesizer) Synthesize(ctx context.Context, req Request) (*audio.Buffer, error) {
	payload := synthesisPayload{
		Text:    req.Text,
		ModelID: c.config.ModelID,
		Voice:   req.VoiceID,
		Speed:   req.Speed,
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/wav")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	samples, sampleRate, channels, err := audio.DecodeWAV(respBody)
	if err != nil {
		return nil, fmt.Errorf("failed to decode synthesized audio: %w", err)
	}
	if channels != 1 {
		return nil, fmt.Errorf("synthesizer returned %d channels, expected mono", channels)
	}

	return audio.NewBuffer(samples, sampleRate), nil
}
