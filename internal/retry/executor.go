package retry

import (
	"context"
	"net/http"
	"time"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/constants"
)

// Config contains configuration for the exponential-backoff executor.
type Config struct {
	MaxRetries   int           `json:"max_retries"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
}

// DefaultConfig returns the default executor configuration: up to three
// retries after the initial attempt, delays of 100ms doubling each time.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   constants.DefaultMaxRetries,
		InitialDelay: constants.DefaultInitialBackoffMs * time.Millisecond,
		MaxDelay:     constants.DefaultMaxBackoffMs * time.Millisecond,
	}
}

// outcome classifies a single attempt. There is no third state: an attempt
// either produced a final result or it is worth retrying.
type outcome int

const (
	outcomeFinal outcome = iota
	outcomeRetryable
)

// classify decides whether an attempt should be retried. Transport
// failures and rate-limit/server statuses are transient; any other status,
// including 4xx validation errors, is final.
func classify(status int, err error) outcome {
	if err != nil {
		return outcomeRetryable
	}
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return outcomeRetryable
	}
	return outcomeFinal
}

// Executor runs operations with exponential backoff on transient failures.
type Executor struct {
	cfg Config
}

func NewExecutor(cfg Config) *Executor {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = constants.DefaultInitialBackoffMs * time.Millisecond
	}
	return &Executor{cfg: cfg}
}

// Do invokes op until it produces a final result or retries are exhausted.
// op reports the HTTP status of its attempt, or a transport error when no
// response was obtained at all.
//
// Do returns nil whenever op produced a response, even a 429/5xx one after
// the last retry: the caller holds the response and must inspect its
// status. A transport error on the final attempt is returned as-is.
func (e *Executor) Do(ctx context.Context, op func(context.Context) (int, error)) error {
	delay := e.cfg.InitialDelay

	for attempt := 0; ; attempt++ {
		status, err := op(ctx)

		if classify(status, err) == outcomeFinal {
			return nil
		}
		if attempt >= e.cfg.MaxRetries {
			// err is nil when the last attempt ended in a retryable
			// status; the caller still has that response to inspect.
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if e.cfg.MaxDelay > 0 && delay > e.cfg.MaxDelay {
			delay = e.cfg.MaxDelay
		}
	}
}
