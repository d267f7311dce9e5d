package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Middleware decorates a Client to inject cross-cutting concerns
// (rate limiting, retries, logging).
type Middleware func(Client) Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Client, mws ...Middleware) Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// decorator forwards everything but GenerateJSON.
type decorator struct{ next Client }

func (d decorator) Name() string { return d.next.Name() }
func (d decorator) Close() error { return d.next.Close() }

// -------- Rate Limiting --------

// RateLimit shares one token bucket across every call made through the
// returned client. If rps <= 0, the limiter is disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Client) Client {
		if rps <= 0 {
			return next
		}
		if burst <= 0 {
			burst = 1
		}
		return &rateLimited{decorator: decorator{next}, rl: rate.NewLimiter(rate.Limit(rps), burst)}
	}
}

type rateLimited struct {
	decorator
	rl *rate.Limiter
}

func (c *rateLimited) GenerateJSON(ctx context.Context, prompt string, input any, schema *Schema) (json.RawMessage, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}
	return c.next.GenerateJSON(ctx, prompt, input, schema)
}

// -------- Retry with exponential backoff --------

// Retry retries GenerateJSON up to maxAttempts with exponential backoff
// starting at baseDelay. Permanent and malformed-output errors are returned
// immediately, as is a canceled context.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Client) Client {
		return &retrying{decorator: decorator{next}, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	decorator
	max  int
	base time.Duration
}

func (r *retrying) GenerateJSON(ctx context.Context, prompt string, input any, schema *Schema) (json.RawMessage, error) {
	var last error
	for i := 0; i < r.max; i++ {
		resp, err := r.next.GenerateJSON(ctx, prompt, input, schema)
		if err == nil {
			return resp, nil
		}
		var pErr *PermanentError
		var mErr *MalformedOutputError
		if errors.As(err, &pErr) || errors.As(err, &mErr) {
			return nil, err
		}
		last = err
		if i == r.max-1 {
			break
		}
		t := time.NewTimer(r.base * time.Duration(1<<i))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return nil, last
}

// -------- Logging --------

// WithLogging logs request size, latency and errors, tagged with the phase
// stored in the context.
func WithLogging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Client) Client {
		return &logged{decorator: decorator{next}, log: logger}
	}
}

type logged struct {
	decorator
	log *zap.Logger
}

func (l *logged) GenerateJSON(ctx context.Context, prompt string, input any, schema *Schema) (json.RawMessage, error) {
	start := time.Now()
	l.log.Debug("llm request",
		zap.String("client", l.next.Name()),
		zap.String("phase", PhaseFrom(ctx)),
		zap.Int("prompt_bytes", len(prompt)))
	raw, err := l.next.GenerateJSON(ctx, prompt, input, schema)
	if err != nil {
		l.log.Warn("llm error",
			zap.String("client", l.next.Name()),
			zap.String("phase", PhaseFrom(ctx)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return raw, err
	}
	l.log.Debug("llm response",
		zap.String("phase", PhaseFrom(ctx)),
		zap.Int("bytes", len(raw)),
		zap.Duration("elapsed", time.Since(start)))
	return raw, nil
}
