package audio

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// FormatError indicates an upload whose container could not be recognized
// or decoded.
type FormatError struct {
	Format string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unsupported audio format %q: %s", e.Format, e.Reason)
}

// PayloadTooLargeError indicates an upload exceeding the configured size
// or duration limits.
type PayloadTooLargeError struct {
	Size  int
	Limit int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("audio payload too large: %d bytes exceeds limit of %d bytes", e.Size, e.Limit)
}

// CodecConfig contains codec adapter limits and target formats.
type CodecConfig struct {
	MaxUploadBytes int           // Maximum accepted raw payload size
	MaxDuration    time.Duration // Maximum accepted audio duration
	TargetRate     int           // Sample rate required by the transcriber
	OutputRate     int           // Sample rate of encoded reply audio
}

// Codec validates and normalizes uploaded audio into mono PCM buffers at the
// transcriber's sample rate, and encodes synthesized buffers back into a
// deliverable container. Downstream stages never resample; all rate and
// channel normalization happens here.
type Codec struct {
	cfg CodecConfig
}

// NewCodec creates a codec adapter with the given limits.
func NewCodec(cfg CodecConfig) *Codec {
	return &Codec{cfg: cfg}
}

// Decode validates raw uploaded bytes and produces a normalized buffer:
// mono PCM-16 at the configured target rate.
func (c *Codec) Decode(raw []byte, declaredFormat string) (*Buffer, error) {
	if c.cfg.MaxUploadBytes > 0 && len(raw) > c.cfg.MaxUploadBytes {
		return nil, &PayloadTooLargeError{Size: len(raw), Limit: c.cfg.MaxUploadBytes}
	}

	format := normalizeFormat(declaredFormat)
	if format != "wav" {
		return nil, &FormatError{Format: declaredFormat, Reason: "only WAV uploads are supported"}
	}

	samples, rate, channels, err := DecodeWAV(raw)
	if err != nil {
		return nil, &FormatError{Format: declaredFormat, Reason: err.Error()}
	}

	mono := downmixToMono(samples, channels)
	if c.cfg.TargetRate > 0 && rate != c.cfg.TargetRate {
		mono = Resample(mono, rate, c.cfg.TargetRate)
		rate = c.cfg.TargetRate
	}

	buf := NewBuffer(mono, rate)
	if c.cfg.MaxDuration > 0 && buf.Duration() > c.cfg.MaxDuration {
		return nil, &PayloadTooLargeError{Size: len(raw), Limit: c.cfg.MaxUploadBytes}
	}

	return buf, nil
}

// Encode serializes a buffer into the requested container format.
// The buffer is resampled to the configured output rate first.
func (c *Codec) Encode(buf *Buffer, targetFormat string) ([]byte, error) {
	format := normalizeFormat(targetFormat)
	if format != "wav" {
		return nil, &FormatError{Format: targetFormat, Reason: "only WAV output is supported"}
	}

	samples := buf.Samples()
	rate := buf.SampleRate()
	if c.cfg.OutputRate > 0 && rate != c.cfg.OutputRate && len(samples) > 0 {
		samples = Resample(samples, rate, c.cfg.OutputRate)
		rate = c.cfg.OutputRate
	}
	if rate == 0 {
		rate = c.cfg.OutputRate
	}

	return EncodeWAV(samples, rate)
}

// PersistTemp writes the buffer to a scoped temporary WAV file for
// inspection. The returned cleanup func removes the file; callers must
// invoke it on all exit paths.
func (c *Codec) PersistTemp(buf *Buffer) (path string, cleanup func(), err error) {
	data, err := EncodeWAV(buf.Samples(), buf.SampleRate())
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode buffer for inspection: %w", err)
	}

	f, err := os.CreateTemp("", "voicechat-*.wav")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	name := f.Name()
	return name, func() { os.Remove(name) }, nil
}

// normalizeFormat maps declared content types and extensions onto a
// canonical container name.
func normalizeFormat(declared string) string {
	f := strings.ToLower(strings.TrimSpace(declared))
	f = strings.TrimPrefix(f, "audio/")
	f = strings.TrimPrefix(f, "x-")
	f = strings.TrimPrefix(f, ".")

	switch f {
	case "wav", "wave", "vnd.wave":
		return "wav"
	default:
		return f
	}
}
