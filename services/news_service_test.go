package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pharmaproche/pharmacie-backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var newsTestClock = fixedClock{now: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)}

func newsServer(t *testing.T, articles []models.NewsArticle, capture *url.Values) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			*capture = r.URL.Query()
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"status":       "ok",
			"totalResults": len(articles),
			"articles":     articles,
		}))
	}))
}

func validArticle(i int) models.NewsArticle {
	return models.NewsArticle{
		Source:      models.NewsSource{Name: "Le Monde"},
		Title:       fmt.Sprintf("Article %d", i),
		Description: "Description",
		URL:         fmt.Sprintf("https://news.example/%d", i),
		PublishedAt: "2026-08-28T10:00:00Z",
	}
}

func TestBuzzBonusWithoutAPIKey(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	service := NewNewsService(server.URL, "", newsTestClock)
	assert.Equal(t, 0.0, service.BuzzBonus(context.Background(), "DOLIPRANE"))
	assert.Equal(t, int32(0), calls.Load())
}

func TestBuzzBonusCountsRecentArticles(t *testing.T) {
	var query url.Values
	articles := []models.NewsArticle{validArticle(1), validArticle(2), validArticle(3)}
	server := newsServer(t, articles, &query)
	defer server.Close()

	service := NewNewsService(server.URL, "test-key", newsTestClock)
	bonus := service.BuzzBonus(context.Background(), "DOLIPRANE")

	assert.InDelta(t, 0.15, bonus, 1e-9)
	assert.Equal(t, "DOLIPRANE", query.Get("q"))
	assert.Equal(t, "fr", query.Get("language"))
	assert.Equal(t, "2026-08-15", query.Get("from"))
}

func TestBuzzBonusIsCapped(t *testing.T) {
	articles := make([]models.NewsArticle, 20)
	for i := range articles {
		articles[i] = validArticle(i)
	}
	server := newsServer(t, articles, nil)
	defer server.Close()

	service := NewNewsService(server.URL, "test-key", newsTestClock)
	assert.Equal(t, BuzzBonusCap, service.BuzzBonus(context.Background(), "DOLIPRANE"))
}

func TestBuzzBonusIsZeroOnUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	service := NewNewsService(server.URL, "test-key", newsTestClock)
	assert.Equal(t, 0.0, service.BuzzBonus(context.Background(), "DOLIPRANE"))
}

func TestFetchPharmaNewsFiltersInvalidArticles(t *testing.T) {
	var query url.Values
	articles := []models.NewsArticle{
		validArticle(1),
		{Title: "", Description: "d", URL: "https://x"},
		{Title: "t", Description: "", URL: "https://x"},
		{Title: "t", Description: "d", URL: ""},
		{Title: "[Removed]", Description: "d", URL: "https://x"},
		validArticle(2),
	}
	server := newsServer(t, articles, &query)
	defer server.Close()

	service := NewNewsService(server.URL, "test-key", newsTestClock)
	payload, err := service.FetchPharmaNews(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ok", payload.Status)
	assert.Equal(t, 2, payload.TotalResults)
	require.Len(t, payload.Articles, 2)
	assert.Equal(t, "Article 1", payload.Articles[0].Title)
	assert.Equal(t, "2026-08-22", query.Get("from"))
}

func TestFetchPharmaNewsCapsFeedSize(t *testing.T) {
	articles := make([]models.NewsArticle, 18)
	for i := range articles {
		articles[i] = validArticle(i)
	}
	server := newsServer(t, articles, nil)
	defer server.Close()

	service := NewNewsService(server.URL, "test-key", newsTestClock)
	payload, err := service.FetchPharmaNews(context.Background())
	require.NoError(t, err)

	// Total reflects every valid article, the feed itself is capped.
	assert.Equal(t, 18, payload.TotalResults)
	assert.Len(t, payload.Articles, 15)
}

func TestFetchPharmaNewsFailsOnUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	service := NewNewsService(server.URL, "test-key", newsTestClock)
	_, err := service.FetchPharmaNews(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NewsAPI error")
}
