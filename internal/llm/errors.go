package llm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultCooldown is reported when the backend does not advertise a
// concrete retry window.
const DefaultCooldown = "a few minutes"

// backoffHint matches the cooldown the backend embeds in 429 error text,
// e.g. "try again in 2m59.56s".
var backoffHint = regexp.MustCompile(`try again in ([0-9]+m[0-9]+\.?[0-9]*s)`)

// RateLimitedError indicates the model backend rejected a request for
// quota reasons. It is surfaced to the caller directly and never retried
// inside the pipeline.
type RateLimitedError struct {
	// Cooldown is the human-readable wait advertised by the backend.
	Cooldown string
	Err      error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("model rate limit reached, cooldown: %s", e.Cooldown)
}

func (e *RateLimitedError) Unwrap() error {
	return e.Err
}

// AsRateLimited returns a *RateLimitedError if err looks like a quota
// rejection, or nil otherwise. The detection is textual because the genai
// SDK does not expose a stable typed error for 429 responses.
func AsRateLimited(err error) *RateLimitedError {
	if err == nil {
		return nil
	}

	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl
	}

	msg := err.Error()
	if !strings.Contains(msg, "429") &&
		!strings.Contains(msg, "rate_limit_exceeded") &&
		!strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return nil
	}

	cooldown := DefaultCooldown
	if m := backoffHint.FindStringSubmatch(msg); m != nil {
		cooldown = m[1]
	}

	return &RateLimitedError{Cooldown: cooldown, Err: err}
}
