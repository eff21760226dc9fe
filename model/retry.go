package model

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opsagent/memorymesh/core"
	"github.com/opsagent/memorymesh/logging"
)

// RetryPolicy bounds retries of external model calls. Each attempt runs under
// its own timeout; after MaxRetries additional attempts the last error is
// surfaced as a *core.TransientServiceError so callers degrade instead of
// aborting the turn.
type RetryPolicy struct {
	// Timeout bounds a single attempt. Zero disables the per-attempt timeout.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialInterval seeds the exponential backoff (default 200ms).
	InitialInterval time.Duration
}

// PolicyFromConfig derives a retry policy from the shared configuration.
func PolicyFromConfig(cfg core.Config) RetryPolicy {
	return RetryPolicy{Timeout: cfg.ModelTimeout, MaxRetries: cfg.ModelMaxRetries}
}

func (p RetryPolicy) run(ctx context.Context, op string, logger logging.Logger, attempt func(ctx context.Context) error) error {
	start := time.Now()
	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	} else {
		bo.InitialInterval = 200 * time.Millisecond
	}

	tries := 0
	err := backoff.Retry(func() error {
		tries++
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if p.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		err := attempt(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		// Caller cancellation is permanent; everything else is worth a retry.
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		logger.Warn("Model call attempt failed", "operation", op, "attempt", tries, "error", err)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.MaxRetries)), ctx))
	logModelCall(logger, op, time.Since(start), err)
	if err != nil {
		return &core.TransientServiceError{Op: op, Err: err}
	}
	return nil
}

// logModelCall records the call outcome, covering all attempts and backoff.
func logModelCall(logger logging.Logger, op string, dur time.Duration, err error) {
	if cl, ok := logger.(*logging.ContextLogger); ok {
		cl.LogModelCall(op, dur, err)
		return
	}
	logger.Debug("Model call finished",
		"operation", op, "duration", dur, "success", err == nil)
}

// RetryCompleter decorates a Completer with the retry policy.
type RetryCompleter struct {
	inner  Completer
	policy RetryPolicy
	logger logging.Logger
}

// NewRetryCompleter wraps inner so every call retries per policy.
func NewRetryCompleter(inner Completer, policy RetryPolicy, logger logging.Logger) *RetryCompleter {
	return &RetryCompleter{inner: inner, policy: policy, logger: logging.OrNoOp(logger)}
}

// Complete implements Completer.
func (r *RetryCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var out string
	err := r.policy.run(ctx, "complete", r.logger, func(ctx context.Context) error {
		var err error
		out, err = r.inner.Complete(ctx, req)
		return err
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// Info implements Completer.
func (r *RetryCompleter) Info() Info { return r.inner.Info() }

// RetryEmbedder decorates an Embedder with the retry policy.
type RetryEmbedder struct {
	inner  Embedder
	policy RetryPolicy
	logger logging.Logger
}

// NewRetryEmbedder wraps inner so every call retries per policy.
func NewRetryEmbedder(inner Embedder, policy RetryPolicy, logger logging.Logger) *RetryEmbedder {
	return &RetryEmbedder{inner: inner, policy: policy, logger: logging.OrNoOp(logger)}
}

// Embed implements Embedder.
func (r *RetryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := r.policy.run(ctx, "embed", r.logger, func(ctx context.Context) error {
		var err error
		out, err = r.inner.Embed(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Dimensions implements Embedder.
func (r *RetryEmbedder) Dimensions() int { return r.inner.Dimensions() }
