// Package llm wraps the generator capability as a pipeline stage.
// It assembles chat prompts from conversation history under a character
// budget and classifies backend failures so the orchestrator can decide
// whether a retry is worthwhile.
package llm
