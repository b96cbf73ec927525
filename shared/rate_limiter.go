package shared

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// OutboundRateLimiter paces calls to a third-party endpoint. Burst is 1:
// callers are fully serialized with at least the configured delay
// between consecutive calls. One instance is shared across requests, so
// the counter is atomic.
type OutboundRateLimiter struct {
	limiter      *rate.Limiter
	requestCount atomic.Int64
}

// NewOutboundRateLimiter creates a limiter enforcing a minimum delay
// between requests.
func NewOutboundRateLimiter(minimumDelay time.Duration) *OutboundRateLimiter {
	return &OutboundRateLimiter{
		limiter: rate.NewLimiter(rate.Every(minimumDelay), 1),
	}
}

// Wait blocks until the next request is allowed or the context ends.
func (l *OutboundRateLimiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		logrus.WithFields(logrus.Fields{
			"component":     "OutboundRateLimiter",
			"request_count": l.requestCount.Load(),
		}).Debug("Rate limiter wait aborted by context")
		return err
	}
	l.requestCount.Add(1)
	return nil
}
