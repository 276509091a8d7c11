// Package ratelimit coordinates API quota across concurrent gateway callers.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Joxtacy/auto-assign-reviewers/pkg/metrics"
	"github.com/Joxtacy/auto-assign-reviewers/pkg/types"

	"github.com/codeGROOVE-dev/retry"
)

// Default policy values.
const (
	DefaultMaxAttempts  = 5
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 1 * time.Minute
	DefaultMaxResetWait = 15 * time.Minute
	DefaultMaxRequests  = 10
	DefaultPer          = time.Second
)

// Policy configures the shared token bucket and the retry budget.
type Policy struct {
	MaxAttempts  uint          // Attempts per request, first try included
	InitialDelay time.Duration // First backoff delay
	MaxDelay     time.Duration // Backoff cap
	MaxResetWait time.Duration // Longest pause honored for a reported quota reset
	MaxRequests  int           // Bucket size; zero or less disables the bucket
	Per          time.Duration // Window in which MaxRequests are refilled
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		MaxResetWait: DefaultMaxResetWait,
		MaxRequests:  DefaultMaxRequests,
		Per:          DefaultPer,
	}
}

// Coordinator is a token bucket shared by every task talking to the gateway.
// A quota reset reported by any task pauses all of them.
type Coordinator struct {
	lastRefill  time.Time
	pausedUntil time.Time
	policy      Policy
	tokens      int
	refillRate  time.Duration
	mu          sync.Mutex
}

// New creates a coordinator. Zero fields in policy fall back to defaults.
func New(policy Policy) *Coordinator {
	def := DefaultPolicy()
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = def.InitialDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = def.MaxDelay
	}
	if policy.MaxResetWait <= 0 {
		policy.MaxResetWait = def.MaxResetWait
	}
	if policy.Per <= 0 {
		policy.Per = def.Per
	}

	c := &Coordinator{
		policy:     policy,
		tokens:     policy.MaxRequests,
		lastRefill: time.Now(),
	}
	if policy.MaxRequests > 0 {
		c.refillRate = policy.Per / time.Duration(policy.MaxRequests)
		if c.refillRate <= 0 {
			c.refillRate = time.Nanosecond
		}
	}
	return c
}

// Policy returns the effective policy.
func (c *Coordinator) Policy() Policy {
	return c.policy
}

// PauseUntil blocks every waiter until t. Resets further out than
// MaxResetWait are clamped.
func (c *Coordinator) PauseUntil(t time.Time) {
	if limit := time.Now().Add(c.policy.MaxResetWait); t.After(limit) {
		t = limit
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.pausedUntil) {
		c.pausedUntil = t
		metrics.RateLimitPausesTotal.Inc()
		slog.Warn("Pausing gateway requests until quota reset", "component", "ratelimit", "until", t.Format(time.RFC3339))
	}
}

// Wait blocks until a request may be sent or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	for {
		d := c.reserve(time.Now())
		if d == 0 {
			return nil
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve takes a token and returns zero, or returns how long to sleep before trying again.
func (c *Coordinator) reserve(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Before(c.pausedUntil) {
		return c.pausedUntil.Sub(now)
	}
	if c.policy.MaxRequests <= 0 {
		return 0
	}

	if elapsed := now.Sub(c.lastRefill); elapsed >= c.refillRate {
		add := int(elapsed / c.refillRate)
		c.tokens = min(c.tokens+add, c.policy.MaxRequests)
		c.lastRefill = c.lastRefill.Add(time.Duration(add) * c.refillRate)
	}

	if c.tokens > 0 {
		c.tokens--
		return 0
	}
	return c.refillRate - now.Sub(c.lastRefill)
}

// Do runs fn under the shared limiter, retrying retryable gateway errors with
// exponential backoff until the attempt budget is spent.
func (c *Coordinator) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	attempts := uint(0)
	jitter := c.policy.InitialDelay / 4
	if jitter <= 0 {
		jitter = 1
	}

	err := retry.Do(
		func() error {
			attempts++
			if err := c.Wait(ctx); err != nil {
				return err
			}

			err := fn(ctx)
			var rl *types.RateLimitError
			switch {
			case err == nil:
				metrics.GatewayRequestsTotal.WithLabelValues(operation, metrics.OutcomeOK).Inc()
			case errors.As(err, &rl):
				metrics.GatewayRequestsTotal.WithLabelValues(operation, metrics.OutcomeRateLimited).Inc()
				if !rl.Reset.IsZero() {
					c.PauseUntil(rl.Reset)
				}
			default:
				metrics.GatewayRequestsTotal.WithLabelValues(operation, metrics.OutcomeError).Inc()
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.policy.MaxAttempts),
		retry.Delay(c.policy.InitialDelay),
		retry.MaxDelay(c.policy.MaxDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(jitter),
		retry.OnRetry(func(n uint, err error) {
			metrics.GatewayRetriesTotal.WithLabelValues(operation).Inc()
			slog.InfoContext(ctx, "Retry attempt", "component", "retry", "operation", operation,
				"attempt", n+1, "max_attempts", c.policy.MaxAttempts, "error", err)
		}),
		retry.LastErrorOnly(true),
		retry.RetryIf(types.Retryable),
	)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if types.Retryable(err) {
		return fmt.Errorf("%s: giving up after %d attempts: %w", operation, attempts, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}
