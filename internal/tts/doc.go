// Package tts wraps the synthesizer capability as a pipeline stage.
// It short-circuits empty reply text to silent audio, provides an HTTP
// client for WAV-producing synthesis backends, and exposes the voice
// catalog discovered from the configured voice directory.
package tts
