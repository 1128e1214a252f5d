package llm

import "fmt"

// ErrorClass separates transport/infrastructure failures from failures
// caused by the model's own output policy.
type ErrorClass string

const (
	// ClassNetwork covers timeouts, unreachable services, rate limits,
	// and server-side faults. Worth a single retry with identical inputs.
	ClassNetwork ErrorClass = "network"
	// ClassContent covers refusals and request rejections. Retrying the
	// same input will not help.
	ClassContent ErrorClass = "content"
)

// GenerationError indicates a reply could not be generated.
type GenerationError struct {
	Class ErrorClass
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Class, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Retryable reports whether a single same-input retry is reasonable.
func (e *GenerationError) Retryable() bool {
	return e.Class == ClassNetwork
}
