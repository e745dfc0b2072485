package extraction

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"landreg/internal/detection/ports"
)

// RateLimitedExtractor paces calls to an extractor backed by a shared service.
type RateLimitedExtractor struct {
	next    ports.TextExtractor
	limiter *rate.Limiter
}

// NewRateLimitedExtractor allows perSecond calls with the given burst. A
// non-positive rate returns next unchanged.
func NewRateLimitedExtractor(next ports.TextExtractor, perSecond float64, burst int) ports.TextExtractor {
	if perSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedExtractor{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimitedExtractor) Extract(ctx context.Context, path, mimeType string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() == nil {
			// The limiter refuses early when the next slot lands past the deadline.
			return "", fmt.Errorf("wait for extraction slot: %w: %w", context.DeadlineExceeded, err)
		}
		return "", fmt.Errorf("wait for extraction slot: %w", err)
	}
	return r.next.Extract(ctx, path, mimeType)
}
