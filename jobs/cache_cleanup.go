package jobs

import (
	"time"

	"github.com/pharmaproche/pharmacie-backend/services"
	"github.com/sirupsen/logrus"
)

// CachePruner is implemented by cache backends that can discard entries
// older than a retention window.
type CachePruner interface {
	Prune(now time.Time, maxAge time.Duration) int
}

// CacheCleanupJob removes day-keyed cache entries past their retention.
// Daily caches are only ever read for the current day, so anything older
// is dead weight.
type CacheCleanupJob struct {
	Stores    []CachePruner
	Clock     services.Clock
	Retention time.Duration
}

func NewCacheCleanupJob(clock services.Clock, stores ...CachePruner) *CacheCleanupJob {
	return &CacheCleanupJob{
		Stores:    stores,
		Clock:     clock,
		Retention: 7 * 24 * time.Hour,
	}
}

func (j *CacheCleanupJob) Run() {
	now := j.Clock.Now()

	removed := 0
	for _, store := range j.Stores {
		removed += store.Prune(now, j.Retention)
	}

	logrus.WithFields(logrus.Fields{
		"job":     "cache_cleanup",
		"removed": removed,
	}).Info("Cache cleanup completed")
}
