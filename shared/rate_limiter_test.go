package shared

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboundRateLimiterConcurrentWaiters(t *testing.T) {
	// One limiter instance is shared by every request; overlapping
	// callers must not corrupt the counter.
	limiter := NewOutboundRateLimiter(time.Microsecond)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				assert.NoError(t, limiter.Wait(context.Background()))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(400), limiter.requestCount.Load())
}

func TestOutboundRateLimiterWaitHonorsContext(t *testing.T) {
	limiter := NewOutboundRateLimiter(time.Hour)

	// The initial token is available immediately.
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, limiter.Wait(ctx))
	assert.Equal(t, int64(1), limiter.requestCount.Load())
}
