package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/trailpay/internal/config"
)

const keyRefundCaller = "refund:caller:%s"

// RefundLimiter throttles refund requests per authenticated caller.
type RefundLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewRefundLimiter(cfg config.Config, bucket *TokenBucket) *RefundLimiter {
	return &RefundLimiter{
		bucket: bucket,
		rate:   cfg.RateLimit.RefundRate,
		burst:  cfg.RateLimit.RefundBurst,
	}
}

func (l *RefundLimiter) Enabled() bool {
	return l != nil && l.bucket != nil && l.rate > 0 && l.burst > 0
}

// AllowCaller reports whether callerID may issue another refund request.
// A disabled limiter always allows.
func (l *RefundLimiter) AllowCaller(ctx context.Context, callerID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyRefundCaller, strings.TrimSpace(callerID)), l.rate, l.burst)
}
