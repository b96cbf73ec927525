package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pharmaproche/pharmacie-backend/models"
	"github.com/pharmaproche/pharmacie-backend/shared"
	"github.com/sirupsen/logrus"
)

const (
	// BuzzBonusCap bounds the additive news bonus per medication.
	BuzzBonusCap = 0.5
	// BuzzBonusPerArticle is the weight of one recent article.
	BuzzBonusPerArticle = 0.05

	buzzLookbackDays = 14
	feedLookbackDays = 7
	feedMaxArticles  = 15

	pharmaFeedQuery = `pharmacie OR médicament OR santé OR "industrie pharmaceutique"`
)

// NewsService talks to the news search endpoint, both for the pharma
// news feed and for the per-medication buzz bonus used by the trends
// ranking.
type NewsService struct {
	baseURL string
	apiKey  string
	client  *http.Client
	clock   Clock
}

func NewNewsService(baseURL, apiKey string, clock Clock) *NewsService {
	return &NewsService{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  shared.NewPooledHTTPClient(15 * time.Second),
		clock:   clock,
	}
}

type newsAPIResponse struct {
	Status       string               `json:"status"`
	TotalResults int                  `json:"totalResults"`
	Articles     []models.NewsArticle `json:"articles"`
}

// BuzzBonus converts the count of articles about a medication published
// in the last 14 days into a capped additive score term. Any failure,
// including a missing API key, yields 0; the trends ranking must never
// break on the news source.
func (s *NewsService) BuzzBonus(ctx context.Context, label string) float64 {
	if s.apiKey == "" {
		return 0
	}

	from := s.clock.Now().AddDate(0, 0, -buzzLookbackDays).Format("2006-01-02")
	parsed, err := s.query(ctx, label, from, 5)
	if err != nil {
		logrus.WithField("label", label).Debugf("Buzz lookup failed, bonus is 0: %v", err)
		return 0
	}

	return math.Min(BuzzBonusCap, float64(len(parsed.Articles))*BuzzBonusPerArticle)
}

// FetchPharmaNews returns the filtered pharmaceutical news feed: only
// articles with a title, description and URL, no removed-content
// sentinels, capped at 15 entries.
func (s *NewsService) FetchPharmaNews(ctx context.Context) (*models.NewsPayload, error) {
	from := s.clock.Now().AddDate(0, 0, -feedLookbackDays).Format("2006-01-02")

	parsed, err := s.query(ctx, pharmaFeedQuery, from, 20)
	if err != nil {
		return nil, err
	}

	valid := make([]models.NewsArticle, 0, len(parsed.Articles))
	for _, article := range parsed.Articles {
		if article.Title == "" || article.Description == "" || article.URL == "" {
			continue
		}
		if strings.Contains(article.Title, "[Removed]") {
			continue
		}
		valid = append(valid, article)
	}

	total := len(valid)
	if len(valid) > feedMaxArticles {
		valid = valid[:feedMaxArticles]
	}

	return &models.NewsPayload{
		Status:       "ok",
		TotalResults: total,
		Articles:     valid,
	}, nil
}

func (s *NewsService) query(ctx context.Context, q, from string, pageSize int) (*newsAPIResponse, error) {
	params := url.Values{}
	params.Set("q", q)
	params.Set("language", "fr")
	params.Set("from", from)
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", fmt.Sprintf("%d", pageSize))
	params.Set("apiKey", s.apiKey)

	endpoint := fmt.Sprintf("%s/everything?%s", s.baseURL, params.Encode())

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	response, err := s.client.Do(request)
	if err != nil {
		return nil, shared.NewUpstreamError("NEWS_FETCH", fmt.Sprintf("news fetch failed: %v", err), "NewsService", "query", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, shared.NewUpstreamError("NEWS_STATUS", fmt.Sprintf("NewsAPI error: %d", response.StatusCode), "NewsService", "query", nil)
	}

	var parsed newsAPIResponse
	if err := json.NewDecoder(response.Body).Decode(&parsed); err != nil {
		return nil, shared.NewUpstreamError("NEWS_DECODE", fmt.Sprintf("malformed news response: %v", err), "NewsService", "query", err)
	}
	return &parsed, nil
}
