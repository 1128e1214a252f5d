// Package audio handles PCM audio buffers and format conversion.
// It implements WAV encoding/decoding, sample rate conversion, and the codec
// adapter that validates uploaded audio and encodes synthesized replies.
package audio
