package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentdesk/logging"
)

// ErrRetriesExhausted is matched (errors.Is) by the error returned after the
// retry budget of a RetryModel is spent.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryError reports a call that kept failing with retryable errors until
// the attempt budget ran out. It unwraps to both ErrRetriesExhausted and the
// last provider error.
type RetryError struct {
	Model    string
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *RetryError) Error() string {
	return fmt.Sprintf("model %s: giving up after %d attempts: %v", e.Model, e.Attempts, e.Last)
}

// Unwrap exposes the sentinel and the last underlying error.
func (e *RetryError) Unwrap() []error { return []error{ErrRetriesExhausted, e.Last} }

// RetryOptions configures a RetryModel.
type RetryOptions struct {
	// MaxAttempts is the total number of calls, including the first (default 3).
	MaxAttempts int
	// Cooldown is the fixed wait between attempts (default 60s).
	Cooldown time.Duration
	// Retryable classifies errors worth another attempt (default IsTransient).
	Retryable func(err error) bool
	// Sleep waits for d or until ctx is done. Tests substitute a recorder.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each cooldown with the failed attempt number.
	OnRetry func(attempt int, err error)
	Logger  logging.Logger
}

// RetryModel decorates a Model with a fixed-cooldown, bounded retry policy
// for transient provider failures. Non-retryable errors pass through
// immediately. It holds no per-call state and is safe for concurrent use.
type RetryModel struct {
	inner Model
	opts  RetryOptions
}

// NewRetryModel wraps inner with the retry policy.
func NewRetryModel(inner Model, optFns ...func(o *RetryOptions)) *RetryModel {
	opts := RetryOptions{
		MaxAttempts: 3,
		Cooldown:    60 * time.Second,
		Retryable:   IsTransient,
		Sleep:       sleepContext,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Retryable == nil {
		opts.Retryable = IsTransient
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &RetryModel{inner: inner, opts: opts}
}

// Generate implements Model. Intermediate partial chunks of failed attempts
// are discarded; only the final response of the successful attempt is emitted.
func (m *RetryModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	out := make(chan Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		resp, err := m.call(ctx, req)
		if err != nil {
			errCh <- err
			return
		}
		out <- resp
	}()

	return out, errCh
}

func (m *RetryModel) call(ctx context.Context, req Request) (Response, error) {
	name := m.inner.Info().Name

	for attempt := 1; ; attempt++ {
		resp, err := GenerateOnce(ctx, m.inner, req)
		if err == nil {
			if attempt > 1 {
				m.opts.Logger.Info("model.retry.recovered", "model", name, "attempts", attempt)
			}
			return resp, nil
		}

		if ctx.Err() != nil {
			return Response{}, err
		}

		if !m.opts.Retryable(err) {
			return Response{}, err
		}

		if attempt >= m.opts.MaxAttempts {
			m.opts.Logger.Error("model.retry.exhausted", "model", name, "attempts", attempt, "error", err.Error())
			return Response{}, &RetryError{Model: name, Attempts: attempt, Last: err}
		}

		m.opts.Logger.Warn("model.retry.wait", "model", name, "attempt", attempt, "cooldown", m.opts.Cooldown.String(), "error", err.Error())

		if m.opts.OnRetry != nil {
			m.opts.OnRetry(attempt, err)
		}

		if serr := m.opts.Sleep(ctx, m.opts.Cooldown); serr != nil {
			return Response{}, serr
		}
	}
}

// Info implements Model by delegating to the wrapped model.
func (m *RetryModel) Info() Info { return m.inner.Info() }

// Unwrap returns the decorated model.
func (m *RetryModel) Unwrap() Model { return m.inner }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
