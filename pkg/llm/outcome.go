package llm

import "time"

// Outcome is the single terminal result of an invocation. Exactly one of the
// success fields or Failure is meaningful: Failure is nil on success, and then
// Text is non-empty and trimmed.
type Outcome struct {
	Text       string
	TokensUsed *int
	Model      string

	Failure *Classification

	// Attempts is the number of upstream calls that were made.
	Attempts int
}

// Success reports whether the invocation produced a reply.
func (o Outcome) Success() bool {
	return o.Failure == nil
}

// RetryState tracks the attempt budget of one invocation.
type RetryState struct {
	Attempt     int
	MaxAttempts int
}

// CanRetry reports whether another attempt may follow the current one.
func (s RetryState) CanRetry() bool {
	return s.Attempt < s.MaxAttempts
}

// RetryEvent is emitted before the invoker sleeps ahead of another attempt.
type RetryEvent struct {
	// Attempt is the zero-based index of the attempt about to be made.
	Attempt        int
	MaxAttempts    int
	Delay          time.Duration
	Classification Classification
}
