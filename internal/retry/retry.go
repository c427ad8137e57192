package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	MaxDelay    time.Duration // 0 = no cap
	Backoff     bool          // Exponential backoff
}

// Default is used for idempotent HTTP calls (GET/PUT).
var Default = RetryConfig{MaxAttempts: 4, Delay: 500 * time.Millisecond, MaxDelay: 8 * time.Second, Backoff: true}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// StatusError is a non-success HTTP status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// CheckStatus turns a response code into nil, a retryable StatusError (5xx, 429)
// or a permanent one (other 4xx).
func CheckStatus(code int, body string) error {
	if code >= 200 && code < 300 {
		return nil
	}
	err := &StatusError{Code: code, Body: body}
	if code >= 500 || code == http.StatusTooManyRequests {
		return err
	}
	return Permanent(err)
}

func WithRetry(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err

			var p *permanentError
			if errors.As(err, &p) {
				return p.err
			}

			if attempt == config.MaxAttempts {
				return fmt.Errorf("failed after %d attempts: %w", config.MaxAttempts, err)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(config.delay(attempt)):
				continue
			}
		}
		return nil
	}

	return lastErr
}

func (c RetryConfig) delay(attempt int) time.Duration {
	d := c.Delay
	if c.Backoff {
		d = c.Delay << (attempt - 1)
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}
