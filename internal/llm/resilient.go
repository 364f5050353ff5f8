package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
)

// ResilientProvider wraps a provider with fortify resilience patterns.
// Every layer is optional; enabled layers nest as
// circuit breaker > retry > bulkhead > provider, with the rate limiter
// checked first.
type ResilientProvider struct {
	provider       Provider
	circuitBreaker circuitbreaker.CircuitBreaker[*Response]
	retrier        retry.Retry[*Response]
	bulkhead       bulkhead.Bulkhead[*Response]
	rateLimit      ratelimit.RateLimiter
	logger         *slog.Logger
}

// ResilientConfig holds configuration for the resilient wrapper
type ResilientConfig struct {
	EnableCircuitBreaker bool `yaml:"circuit_breaker"`
	EnableRetry          bool `yaml:"retry"`
	EnableBulkhead       bool `yaml:"bulkhead"`
	EnableRateLimit      bool `yaml:"rate_limit"`

	// MaxAttempts for retry (default: 2)
	MaxAttempts int `yaml:"max_attempts"`

	// MaxConcurrent for bulkhead (default: 4)
	MaxConcurrent int `yaml:"max_concurrent"`

	// RatePerSecond for rate limiting (default: 5)
	RatePerSecond int `yaml:"rate_per_second"`

	Logger *slog.Logger `yaml:"-"`
}

// DefaultResilientConfig returns defaults tuned for judge calls, which sit
// on the submission path and must fail fast.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		EnableCircuitBreaker: true,
		EnableRetry:          true,
		EnableBulkhead:       true,
		EnableRateLimit:      true,
		MaxAttempts:          2,
		MaxConcurrent:        4,
		RatePerSecond:        5,
	}
}

// NewResilientProvider wraps provider according to cfg
func NewResilientProvider(provider Provider, cfg ResilientConfig) *ResilientProvider {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rp := &ResilientProvider{provider: provider, logger: logger}

	if cfg.EnableCircuitBreaker {
		rp.circuitBreaker = circuitbreaker.New[*Response](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				rp.logger.Warn("judge provider circuit changed",
					"provider", provider.Name(),
					"from", from.String(),
					"to", to.String())
			},
		})
	}

	if cfg.EnableRetry {
		attempts := cfg.MaxAttempts
		if attempts <= 0 {
			attempts = 2
		}
		rp.retrier = retry.New[*Response](retry.Config{
			MaxAttempts:   attempts,
			InitialDelay:  250 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   isRetryableHTTPError,
		})
	}

	if cfg.EnableBulkhead {
		maxConcurrent := cfg.MaxConcurrent
		if maxConcurrent <= 0 {
			maxConcurrent = 4
		}
		rp.bulkhead = bulkhead.New[*Response](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
			MaxQueue:      maxConcurrent * 4,
			QueueTimeout:  5 * time.Second,
		})
	}

	if cfg.EnableRateLimit {
		rate := cfg.RatePerSecond
		if rate <= 0 {
			rate = 5
		}
		rp.rateLimit = ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    rate * 2,
			Interval: time.Second,
		})
	}

	return rp
}

func (p *ResilientProvider) Name() string {
	return p.provider.Name()
}

func (p *ResilientProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if p.rateLimit != nil && !p.rateLimit.Allow(ctx, p.provider.Name()) {
		return nil, fmt.Errorf("rate limit exceeded for provider %s", p.provider.Name())
	}

	operation := func(ctx context.Context) (*Response, error) {
		return p.provider.Generate(ctx, req)
	}
	if p.bulkhead != nil {
		inner := operation
		operation = func(ctx context.Context) (*Response, error) {
			return p.bulkhead.Execute(ctx, inner)
		}
	}
	if p.retrier != nil {
		inner := operation
		operation = func(ctx context.Context) (*Response, error) {
			return p.retrier.Do(ctx, inner)
		}
	}
	if p.circuitBreaker != nil {
		return p.circuitBreaker.Execute(ctx, operation)
	}
	return operation(ctx)
}

// Close releases the rate limiter
func (p *ResilientProvider) Close() error {
	if p.rateLimit != nil {
		return p.rateLimit.Close()
	}
	return nil
}

// retryableStatus lists the HTTP statuses worth retrying, in the form
// postJSON reports them.
var retryableStatus = []string{"status 429", "status 500", "status 502", "status 503", "status 504"}

func isRetryableHTTPError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range retryableStatus {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
