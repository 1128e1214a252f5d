package main

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"time"
)

// Mock model backend for local development: a /transcribe endpoint that
// accepts the multipart upload the service sends, and a /synthesize
// endpoint that returns a WAV tone sized to the requested text.

type transcriptionResponse struct {
	Text        string    `json:"text"`
	Confidence  float32   `json:"confidence"`
	Language    string    `json:"language"`
	ProcessedAt time.Time `json:"processed_at"`
}

type synthesisRequest struct {
	Text    string  `json:"text"`
	ModelID string  `json:"model_id"`
	Voice   string  `json:"voice"`
	Speed   float64 `json:"speed"`
}

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	model := r.FormValue("model")
	language := r.FormValue("language")

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	log.Printf("🎤 TRANSCRIPTION REQUEST:")
	log.Printf("    Model: %s", model)
	log.Printf("    Language: %s", language)
	log.Printf("    Filename: %s", header.Filename)
	log.Printf("    Audio Size: %d bytes", len(audioData))

	// Simulate processing time
	time.Sleep(200 * time.Millisecond)

	response := transcriptionResponse{
		Text:        "This is a test transcription of the uploaded audio",
		Confidence:  0.95,
		Language:    "en",
		ProcessedAt: time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)

	log.Printf("✅ TRANSCRIPTION RESPONSE SENT: '%s'", response.Text)
}

func synthesizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req synthesisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	log.Printf("🔊 SYNTHESIS REQUEST:")
	log.Printf("    Model: %s", req.ModelID)
	log.Printf("    Voice: %s", req.Voice)
	log.Printf("    Speed: %.2f", req.Speed)
	log.Printf("    Text: %q", req.Text)

	// Roughly 60ms of audio per character, like a real voice would take
	durationSec := float64(len(req.Text)) * 0.06
	if durationSec < 0.5 {
		durationSec = 0.5
	}

	wav := makeToneWAV(durationSec, 24000)

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	w.Write(wav)

	log.Printf("✅ SYNTHESIS RESPONSE SENT: %.2fs of audio", durationSec)
}

// makeToneWAV builds a mono 16-bit PCM WAV containing a 220 Hz tone.
func makeToneWAV(durationSec float64, sampleRate int) []byte {
	numSamples := int(durationSec * float64(sampleRate))
	dataSize := numSamples * 2

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i := 0; i < numSamples; i++ {
		t := float64(i) / float64(sampleRate)
		sample := int16(8000 * math.Sin(2*math.Pi*220*t))
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(sample))
	}

	return buf
}

func main() {
	http.HandleFunc("/transcribe", transcribeHandler)
	http.HandleFunc("/synthesize", synthesizeHandler)

	port := ":9000"
	log.Printf("🚀 Mock Model Backend starting on port %s", port)
	log.Printf("📡 STT: http://localhost%s/transcribe", port)
	log.Printf("📡 TTS: http://localhost%s/synthesize", port)
	log.Println("💡 Point stt.endpoint and tts.endpoint at these URLs")

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
