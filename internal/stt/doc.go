// Package stt wraps the transcriber capability as a pipeline stage.
// It detects silent input before invoking the model and provides an HTTP
// client for Whisper-style transcription backends.
package stt
