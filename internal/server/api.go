package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/EvanGks/vision-voice-multimodal-app/internal/audio"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/conversation"
	"github.com/EvanGks/vision-voice-multimodal-app/internal/pipeline"
)

// turnResponse is the JSON body returned by /api/turn.
type turnResponse struct {
	TurnID        string `json:"turn_id"`
	SessionID     string `json:"session_id"`
	Status        string `json:"status"`
	Transcription string `json:"transcription"`
	Response      string `json:"response"`
	FailedStage   string `json:"failed_stage,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Audio         string `json:"audio,omitempty"` // base64-encoded WAV
	AudioFormat   string `json:"audio_format,omitempty"`
}

// handleTurn implements POST /api/turn: one full conversational turn over
// an uploaded audio payload.
func (h *HTTPServer) handleTurn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw, format, err := h.readUploadedAudio(w, r)
	if err != nil {
		h.writeIngestError(w, err)
		return
	}

	voiceID := r.FormValue("voice")
	if voiceID != "" && !h.voices.Has(voiceID) {
		http.Error(w, fmt.Sprintf("Unknown voice '%s'", voiceID), http.StatusBadRequest)
		return
	}

	speed, err := parseSpeed(r.FormValue("speed"))
	if err != nil {
		http.Error(w, "Invalid speed value", http.StatusBadRequest)
		return
	}

	result, err := h.orchestrator.RunTurn(r.Context(), raw, pipeline.TurnOptions{
		SessionID:       r.FormValue("session_id"),
		Format:          format,
		VoiceID:         voiceID,
		Speed:           speed,
		HighPerformance: parseBool(r.FormValue("high_performance")),
	})
	if err != nil {
		// Only ingest failures surface as errors; the turn never started.
		h.writeIngestError(w, err)
		return
	}

	resp := turnResponse{
		TurnID:        result.TurnID,
		SessionID:     result.SessionID,
		Status:        string(result.Status),
		Transcription: result.UserText,
		Response:      result.ReplyText,
		FailedStage:   string(result.FailedStage),
		Reason:        result.Reason,
	}
	if result.Status == conversation.StatusOK {
		resp.FailedStage = ""
		resp.Audio = base64.StdEncoding.EncodeToString(result.ReplyAudio)
		resp.AudioFormat = "wav"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleTranscribe implements POST /api/transcribe: transcription only.
func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw, format, err := h.readUploadedAudio(w, r)
	if err != nil {
		h.writeIngestError(w, err)
		return
	}

	buf, err := h.codec.Decode(raw, format)
	if err != nil {
		h.writeIngestError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.config.Pipeline.GetPerStageTimeout())
	defer cancel()

	utterance, err := h.transcriber.Transcribe(ctx, buf)
	if err != nil {
		h.logger.Error("Transcription failed", slog.String("error", err.Error()))
		http.Error(w, "Transcription failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"text":       utterance.Text,
		"confidence": utterance.Confidence,
		"empty":      utterance.Empty,
		"duration":   utterance.SourceDuration.Seconds(),
	})
}

// handleGenerate implements POST /api/generate: reply generation only.
// A session_id pulls that session's history into the prompt without
// recording the exchange.
func (h *HTTPServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Text      string `json:"text"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	var history []conversation.Turn
	if req.SessionID != "" {
		if state, ok := h.orchestrator.Sessions().Get(req.SessionID); ok {
			history = state.Turns()
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.config.Pipeline.GetPerStageTimeout())
	defer cancel()

	reply, err := h.generator.Generate(ctx, req.Text, history)
	if err != nil {
		h.logger.Error("Generation failed", slog.String("error", err.Error()))
		http.Error(w, "Generation failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"response": reply,
	})
}

// handleSpeak implements POST /api/speak: speech synthesis only. The
// response body is the encoded WAV audio.
func (h *HTTPServer) handleSpeak(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Text            string  `json:"text"`
		Voice           string  `json:"voice"`
		Speed           float64 `json:"speed"`
		HighPerformance bool    `json:"high_performance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if req.Voice != "" && !h.voices.Has(req.Voice) {
		http.Error(w, fmt.Sprintf("Unknown voice '%s'", req.Voice), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.config.Pipeline.GetPerStageTimeout())
	defer cancel()

	speed := h.synthesizer.EffectiveSpeed(req.Speed, req.HighPerformance)
	buf, err := h.synthesizer.Synthesize(ctx, req.Text, req.Voice, speed)
	if err != nil {
		h.logger.Error("Synthesis failed", slog.String("error", err.Error()))
		http.Error(w, "Synthesis failed", http.StatusBadGateway)
		return
	}

	data, err := h.codec.Encode(buf, "wav")
	if err != nil {
		h.logger.Error("Encoding failed", slog.String("error", err.Error()))
		http.Error(w, "Encoding failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// handleVoices implements GET /api/voices
func (h *HTTPServer) handleVoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"voices": h.voices.Voices(),
	})
}

// handleVoicesByLanguage implements GET /api/voices_by_language
func (h *HTTPServer) handleVoicesByLanguage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.voices.VoicesByLanguage())
}

// handleSessions implements GET /api/sessions
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos := h.orchestrator.Sessions().Infos()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	})
}

// handleSessionDetail implements GET and DELETE on /api/sessions/{id}
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if sessionID == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		state, ok := h.orchestrator.Sessions().Get(sessionID)
		if !ok {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":         sessionID,
			"created_at": state.CreatedAt(),
			"last_used":  state.LastUsed(),
			"turns":      state.Turns(),
		})

	case http.MethodDelete:
		h.orchestrator.Sessions().Remove(sessionID)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// readUploadedAudio extracts the audio file from a multipart upload,
// enforcing the configured size limit before the payload is buffered.
func (h *HTTPServer) readUploadedAudio(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	maxBytes := h.config.Audio.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+4096)

	if err := r.ParseMultipartForm(1 << 20); err != nil {
		return nil, "", &audio.PayloadTooLargeError{Size: int(r.ContentLength), Limit: int(maxBytes)}
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		return nil, "", &audio.FormatError{Format: "", Reason: "missing 'audio' form field"}
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(raw)) > maxBytes {
		return nil, "", &audio.PayloadTooLargeError{Size: len(raw), Limit: int(maxBytes)}
	}

	format := header.Header.Get("Content-Type")
	if format == "" || format == "application/octet-stream" {
		format = formatFromFilename(header.Filename)
	}

	h.metrics.RecordUpload(len(raw))

	return raw, format, nil
}

// writeIngestError maps ingest failures to HTTP status codes.
func (h *HTTPServer) writeIngestError(w http.ResponseWriter, err error) {
	var formatErr *audio.FormatError
	var sizeErr *audio.PayloadTooLargeError

	switch {
	case errors.As(err, &sizeErr):
		http.Error(w, sizeErr.Error(), http.StatusRequestEntityTooLarge)
	case errors.As(err, &formatErr):
		http.Error(w, formatErr.Error(), http.StatusUnsupportedMediaType)
	default:
		http.Error(w, "Invalid audio upload", http.StatusBadRequest)
	}
}

func formatFromFilename(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return strings.ToLower(name[idx+1:])
	}
	return ""
}

func parseSpeed(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseBool(s string) bool {
	return s == "true" || s == "1"
}
