package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaproche/pharmacie-backend/services"
	"github.com/sirupsen/logrus"
)

// WarmupLimit is the ranking size precomputed by the daily job. Warming
// with a generous limit lets the daily cache serve any smaller request
// by truncation for the rest of the day.
const WarmupLimit = 50

// DailyTrendsJob warms the trends cache so the first user of the day
// does not pay for the full snapshot diff. Re-runs within the same day
// are cheap cache hits.
type DailyTrendsJob struct {
	TrendsService *services.TrendsService
}

func NewDailyTrendsJob(trendsService *services.TrendsService) *DailyTrendsJob {
	return &DailyTrendsJob{TrendsService: trendsService}
}

func (j *DailyTrendsJob) Run() {
	runID := uuid.NewString()
	logger := logrus.WithFields(logrus.Fields{
		"job":    "daily_trends",
		"run_id": runID,
	})
	logger.Info("Starting daily trends warmup job")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	started := time.Now()
	payload, fromCache, err := j.TrendsService.ComputeTrends(ctx, WarmupLimit)
	if err != nil {
		logger.Errorf("Daily trends warmup failed: %v", err)
		return
	}

	logger.WithFields(logrus.Fields{
		"items":       len(payload.Items),
		"from_cache":  fromCache,
		"latest_file": payload.LatestFile,
		"duration":    time.Since(started),
	}).Info("Daily trends warmup completed")

	if _, _, err := j.TrendsService.PharmaNews(ctx); err != nil {
		logger.Warnf("Pharma news warmup failed: %v", err)
	}
}
