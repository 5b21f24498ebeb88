package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedProvider holds completions back so the wrapped backend sees at
// most rpm requests per minute. A full minute's quota may be spent at once.
type RateLimitedProvider struct {
	Provider
	limiter *rate.Limiter
}

// NewRateLimitedProvider returns provider unchanged when rpm <= 0.
func NewRateLimitedProvider(provider Provider, rpm int) Provider {
	if rpm <= 0 {
		return provider
	}
	every := time.Minute / time.Duration(rpm)
	return &RateLimitedProvider{
		Provider: provider,
		limiter:  rate.NewLimiter(rate.Every(every), rpm),
	}
}

func (r *RateLimitedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s rate limit: %w", r.Provider.Name(), err)
	}
	return r.Provider.Complete(ctx, req)
}
