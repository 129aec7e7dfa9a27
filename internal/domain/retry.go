package domain

import (
	"errors"

	"github.com/rs/zerolog"
)

// RetryOnConflict runs fn up to attempts times, retrying only when it fails
// with ErrConcurrentUpdate. fn must open its own transaction on every call.
func RetryOnConflict(attempts int, log zerolog.Logger, operation string, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrConcurrentUpdate) {
			return err
		}

		if attempt < attempts {
			log.Warn().
				Str("operation", operation).
				Int("attempt", attempt).
				Int("max_attempts", attempts).
				Err(err).
				Msg("Concurrent update, retrying")
		} else {
			log.Error().
				Str("operation", operation).
				Int("attempt", attempt).
				Err(err).
				Msg("Concurrent update persisted after all retries")
		}
	}
	return err
}
