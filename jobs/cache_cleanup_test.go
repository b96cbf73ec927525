package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type recordingPruner struct {
	now     time.Time
	maxAge  time.Duration
	removed int
}

func (p *recordingPruner) Prune(now time.Time, maxAge time.Duration) int {
	p.now = now
	p.maxAge = maxAge
	return p.removed
}

func TestCacheCleanupJobPrunesAllStores(t *testing.T) {
	now := time.Date(2026, 8, 29, 3, 0, 0, 0, time.UTC)
	first := &recordingPruner{removed: 2}
	second := &recordingPruner{removed: 1}

	job := NewCacheCleanupJob(fixedClock{now: now}, first, second)
	job.Run()

	assert.Equal(t, now, first.now)
	assert.Equal(t, now, second.now)
	assert.Equal(t, 7*24*time.Hour, first.maxAge)
	assert.Equal(t, 7*24*time.Hour, second.maxAge)
}
