package llm

import (
	"context"
	"net/http"

	"golang.org/x/time/rate"
)

// rateLimitedProvider 在每次外呼前等待限流令牌。
type rateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// WithRateLimit wraps p so outbound calls are limited to rps requests per
// second with the given burst. rps <= 0 disables limiting.
func WithRateLimit(p Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return p
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedProvider{
		inner:   p,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *rateLimitedProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, &Error{
			Code:       ErrRateLimited,
			Message:    "rate limiter wait aborted",
			HTTPStatus: http.StatusTooManyRequests,
			Provider:   r.inner.Name(),
			Cause:      err,
		}
	}
	return r.inner.Completion(ctx, req)
}

func (r *rateLimitedProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return r.inner.HealthCheck(ctx)
}

func (r *rateLimitedProvider) Name() string { return r.inner.Name() }
