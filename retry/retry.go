// Package retry wraps flaky external operations with bounded, deterministic
// retry. Only failures classified as transient are retried; everything else
// surfaces immediately.
package retry

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Policy describes how one kind of operation is retried. The backoff schedule
// is fixed and jitter-free so tests can assert the exact sleep sequence.
type Policy struct {
	// Name tags log lines and wrapped errors.
	Name string
	// MaxAttempts counts the first try, so 3 means up to 2 retries.
	MaxAttempts int
	// Backoff holds the sleep before each retry; the last entry repeats if
	// attempts outnumber entries.
	Backoff []time.Duration
	// Retryable classifies an error as transient. Nil means nothing retries.
	Retryable func(error) bool
}

// ExhaustedError is returned when a transient failure survives every attempt.
// It carries all per-attempt errors plus the attempt count and elapsed time,
// so the caller never needs a debug re-run to see what happened.
type ExhaustedError struct {
	Op       string
	Attempts int
	Elapsed  time.Duration
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts in %s: %v", e.Op, e.Attempts, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Executor runs operations under a policy. Sleep is swappable for tests;
// the zero value of sleep means time.Sleep.
type Executor struct {
	log   *zap.Logger
	sleep func(time.Duration)
}

func NewExecutor(log *zap.Logger) *Executor {
	return &Executor{log: log.Named("retry"), sleep: time.Sleep}
}

// WithSleep replaces the sleep function. Test hook.
func (e *Executor) WithSleep(sleep func(time.Duration)) *Executor {
	e.sleep = sleep
	return e
}

// Do runs op under the policy. A non-retryable failure returns at once with
// zero sleeps, wrapped with the attempt it died on. A retryable failure
// sleeps Backoff[min(attempt-1, len-1)] and tries again until MaxAttempts is
// spent, then returns ExhaustedError wrapping every attempt's failure.
func (e *Executor) Do(p Policy, op func() error) error {
	start := time.Now()
	var all error

	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			if attempt > 1 {
				e.log.Info("operation recovered",
					zap.String("op", p.Name),
					zap.Int("attempt", attempt),
				)
			}
			return nil
		}
		all = multierror.Append(all, err)

		if p.Retryable == nil || !p.Retryable(err) {
			return fmt.Errorf("%s failed on attempt %d after %s: %w",
				p.Name, attempt, time.Since(start).Round(time.Millisecond), err)
		}
		if attempt >= p.MaxAttempts {
			return &ExhaustedError{
				Op:       p.Name,
				Attempts: attempt,
				Elapsed:  time.Since(start),
				Err:      all,
			}
		}

		var delay time.Duration
		if len(p.Backoff) > 0 {
			delay = p.Backoff[min(attempt-1, len(p.Backoff)-1)]
		}
		e.log.Warn("transient failure, retrying",
			zap.String("op", p.Name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		e.sleep(delay)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
