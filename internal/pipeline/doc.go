// Package pipeline sequences the codec and the three model stages into
// conversational turns. It owns the per-turn state machine, per-stage
// timeouts, failure attribution, and the only write access to conversation
// history.
package pipeline
