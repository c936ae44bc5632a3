package llm

import (
	"errors"
	"strings"
)

var (
	// ErrTimeout is returned when the provider does not answer in time.
	ErrTimeout = errors.New("llm: request timed out")

	// ErrRateLimit is returned when the provider rejects for quota.
	ErrRateLimit = errors.New("llm: rate limit exceeded")

	// ErrGenerate wraps other provider failures.
	ErrGenerate = errors.New("llm: generation failed")
)

// classify maps a raw provider error onto the package sentinels. Providers
// surface timeouts and quota errors in their message text more reliably
// than in typed fields.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return ErrTimeout
	case strings.Contains(msg, "quota") || strings.Contains(msg, "rate"):
		return ErrRateLimit
	}
	return ErrGenerate
}
