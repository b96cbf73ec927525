package services

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/pharmaproche/pharmacie-backend/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	trendsCacheKind = "trends"
	newsCacheKind   = "news"

	// EnrichmentConcurrency bounds the number of candidates whose label
	// and buzz lookups are in flight at once.
	EnrichmentConcurrency = 5

	trendsSource = "Medic'AM (CNAM), dernier mois vs mois précédent (ville remboursée) + bonus actu NewsAPI (14j, FR)"
)

// LabelResolver resolves a CIP13 code into a display label.
type LabelResolver interface {
	Lookup(ctx context.Context, cip13 string) string
}

// BuzzScorer converts a medication label into a bounded news bonus.
type BuzzScorer interface {
	BuzzBonus(ctx context.Context, label string) float64
}

// PharmaNewsSource provides the filtered pharma news feed.
type PharmaNewsSource interface {
	FetchPharmaNews(ctx context.Context) (*models.NewsPayload, error)
}

// TrendsService computes the daily medication trend ranking: Medic'AM
// snapshot diff, news-buzz enrichment, and day-keyed caching. A cached
// ranking computed for a larger limit serves smaller requests by
// truncation; a smaller one does not.
type TrendsService struct {
	medicam *MedicamService
	labels  LabelResolver
	buzz    BuzzScorer
	news    PharmaNewsSource
	cache   DailyCacheStore
	clock   Clock
}

func NewTrendsService(medicam *MedicamService, labels LabelResolver, buzz BuzzScorer, news PharmaNewsSource, cache DailyCacheStore, clock Clock) *TrendsService {
	return &TrendsService{
		medicam: medicam,
		labels:  labels,
		buzz:    buzz,
		news:    news,
		cache:   cache,
		clock:   clock,
	}
}

// ComputeTrends returns the top `limit` trending medications for the
// current calendar day. fromCache reports whether the payload was served
// from the daily cache.
func (s *TrendsService) ComputeTrends(ctx context.Context, limit int) (*models.TrendsPayload, bool, error) {
	today := DayKey(s.clock.Now())

	if cached, ok := s.readCachedTrends(ctx, today, limit); ok {
		return cached, true, nil
	}

	latest, previous, err := s.medicam.DiscoverLatestResources(ctx)
	if err != nil {
		return nil, false, err
	}

	latestIndex, previousIndex, err := s.medicam.FetchIndexes(ctx, latest, previous)
	if err != nil {
		return nil, false, err
	}

	candidates := ComputeCandidates(latestIndex, previousIndex, limit)
	enriched := s.enrich(ctx, candidates)

	sort.SliceStable(enriched, func(i, j int) bool {
		return enriched[i].ScoreTendance > enriched[j].ScoreTendance
	})
	if len(enriched) > limit {
		enriched = enriched[:limit]
	}

	payload := &models.TrendsPayload{
		Source:       trendsSource,
		LatestFile:   latest.Title,
		PreviousFile: previous.Title,
		GeneratedAt:  s.clock.Now().Format(time.RFC3339),
		Limit:        limit,
		Items:        enriched,
	}

	s.writeCache(ctx, trendsCacheKind, today, payload)

	return payload, false, nil
}

// enrich resolves labels and buzz bonuses for the shortlist with at most
// EnrichmentConcurrency candidates in flight. Lookup failures degrade to
// the placeholder label and a zero bonus; the batch never aborts.
func (s *TrendsService) enrich(ctx context.Context, candidates []TrendCandidate) []models.MedicamentTrendEntry {
	entries := make([]models.MedicamentTrendEntry, len(candidates))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(EnrichmentConcurrency)

	for i, candidate := range candidates {
		i, candidate := i, candidate
		group.Go(func() error {
			label := s.labels.Lookup(groupCtx, candidate.CIP13)
			bonus := s.buzz.BuzzBonus(groupCtx, label)

			entries[i] = models.MedicamentTrendEntry{
				CIP13:          candidate.CIP13,
				Label:          label,
				Boites:         math.Round(candidate.Boites),
				Euros:          math.Round(candidate.Euros),
				DeltaVolumePct: roundTo(candidate.DeltaVol*100, 1),
				DeltaValeurPct: roundTo(candidate.DeltaVal*100, 1),
				ScoreTendance:  roundTo(candidate.BaseScore+bonus, 3),
				BonusActu:      roundTo(bonus, 3),
			}
			return nil
		})
	}

	// Workers never return errors; failures are substituted inline.
	_ = group.Wait()

	return entries
}

func (s *TrendsService) readCachedTrends(ctx context.Context, today string, limit int) (*models.TrendsPayload, bool) {
	raw, ok := s.cache.Read(ctx, trendsCacheKind, today)
	if !ok {
		return nil, false
	}

	var payload models.TrendsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logrus.Warnf("Discarding unreadable trends cache entry: %v", err)
		return nil, false
	}

	// A ranking computed for a smaller limit cannot serve a larger
	// request; one computed for a larger limit is truncated, never
	// returned verbatim.
	if payload.Limit < limit {
		return nil, false
	}
	if len(payload.Items) > limit {
		payload.Items = payload.Items[:limit]
	}
	payload.Limit = limit

	return &payload, true
}

// PharmaNews returns the day-cached pharmaceutical news feed.
func (s *TrendsService) PharmaNews(ctx context.Context) (*models.NewsPayload, bool, error) {
	today := DayKey(s.clock.Now())

	if raw, ok := s.cache.Read(ctx, newsCacheKind, today); ok {
		var payload models.NewsPayload
		if err := json.Unmarshal(raw, &payload); err == nil {
			return &payload, true, nil
		}
		logrus.Warn("Discarding unreadable news cache entry")
	}

	payload, err := s.news.FetchPharmaNews(ctx)
	if err != nil {
		return nil, false, err
	}

	s.writeCache(ctx, newsCacheKind, today, payload)

	return payload, false, nil
}

// writeCache persists best-effort: a cache fault never fails the
// computation that produced the payload.
func (s *TrendsService) writeCache(ctx context.Context, kind, day string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logrus.Warnf("Failed to marshal %s payload for caching: %v", kind, err)
		return
	}
	if err := s.cache.Write(ctx, kind, day, raw); err != nil {
		logrus.Warnf("Failed to write %s cache for %s: %v", kind, day, err)
	}
}

func roundTo(value float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}
