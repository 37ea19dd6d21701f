// Package retry provides bounded retry with exponential backoff for calls to
// the inference provider and the database. Transient failures are absorbed
// here so they never surface as document-level failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/application/common/slogger"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/port/outbound"
)

// Config defines retry behavior.
type Config struct {
	MaxRetries    int           `json:"max_retries"`
	InitialDelay  time.Duration `json:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
	Jitter        bool          `json:"jitter"`
}

// DefaultConfig returns the retry policy used for provider calls.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:    3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// Operation represents an operation that can be retried.
type Operation func(ctx context.Context) error

// RetryableChecker classifies errors as transient or permanent.
type RetryableChecker interface {
	IsRetryable(err error) bool
}

// Executor handles retry logic with exponential backoff.
type Executor struct {
	config  *Config
	checker RetryableChecker
}

// NewExecutor creates an executor with the default transient-error checker.
func NewExecutor(config *Config) *Executor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Executor{config: config, checker: &DefaultChecker{}}
}

// NewExecutorWithChecker creates an executor with a custom checker.
func NewExecutorWithChecker(config *Config, checker RetryableChecker) *Executor {
	if config == nil {
		config = DefaultConfig()
	}
	if checker == nil {
		checker = &DefaultChecker{}
	}
	return &Executor{config: config, checker: checker}
}

// Execute runs the operation, retrying transient failures with backoff.
func (e *Executor) Execute(ctx context.Context, operation Operation) error {
	var lastErr error

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := e.calculateDelay(attempt)
			slogger.Debug(ctx, "Retrying operation after delay", slogger.Fields3(
				"attempt", attempt,
				"max_retries", e.config.MaxRetries,
				"delay_ms", delay.Milliseconds(),
			))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := operation(ctx)
		if err == nil {
			if attempt > 0 {
				slogger.Info(ctx, "Operation succeeded after retries", slogger.Fields{
					"attempt": attempt + 1,
				})
			}
			return nil
		}

		lastErr = err

		if !e.checker.IsRetryable(err) {
			slogger.Debug(ctx, "Error is not retryable", slogger.Fields2(
				"error", err.Error(),
				"attempt", attempt+1,
			))
			return err
		}

		slogger.Warn(ctx, "Operation failed, will retry", slogger.Fields3(
			"error", err.Error(),
			"attempt", attempt+1,
			"max_retries", e.config.MaxRetries,
		))
	}

	return fmt.Errorf("operation failed after %d retries: %w", e.config.MaxRetries, lastErr)
}

// calculateDelay computes the backoff for a given attempt.
func (e *Executor) calculateDelay(attempt int) time.Duration {
	delay := float64(e.config.InitialDelay) * math.Pow(e.config.BackoffFactor, float64(attempt-1))

	if delay > float64(e.config.MaxDelay) {
		delay = float64(e.config.MaxDelay)
	}

	if e.config.Jitter {
		// up to ±25% of the delay
		jitterRange := delay * 0.25
		delay += (float64(time.Now().UnixNano()%1000000)/1000000.0 - 0.5) * 2 * jitterRange
	}

	return time.Duration(delay)
}

// DefaultChecker classifies provider and network errors.
type DefaultChecker struct{}

// IsRetryable reports whether the error is worth retrying.
func (d *DefaultChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var provErr *outbound.ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}

	errStr := strings.ToLower(err.Error())

	if containsAny(errStr, []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadlock",
		"connection lost",
		"too many connections",
	}) {
		return true
	}

	if containsAny(errStr, []string{
		"temporary",
		"try again",
		"resource temporarily unavailable",
		"rate limit",
		"429",
	}) {
		return true
	}

	if containsAny(errStr, []string{
		"network is unreachable",
		"no route to host",
		"connection timed out",
	}) {
		return true
	}

	return false
}

func containsAny(s string, substrings []string) bool {
	for _, substr := range substrings {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// WithRetry executes an operation with the default policy.
func WithRetry(ctx context.Context, operation Operation) error {
	return NewExecutor(DefaultConfig()).Execute(ctx, operation)
}

// WithRetryConfig executes an operation with a custom policy.
func WithRetryConfig(ctx context.Context, config *Config, operation Operation) error {
	return NewExecutor(config).Execute(ctx, operation)
}
