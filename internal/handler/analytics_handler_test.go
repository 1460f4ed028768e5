package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/postpulse/internal/db"
	"github.com/postpulse/internal/service"
)

func TestClearCacheScopesToWorkspaceAndType(t *testing.T) {
	api, gdb := setupTestAPI(t)
	ctx := context.Background()

	entries := []struct {
		workspace string
		cacheType string
		context   string
	}{
		{testWorkspace, service.CacheTypeDraftScore, "a"},
		{testWorkspace, service.CacheTypeExperiment, "b"},
		{"ws-other", service.CacheTypeDraftScore, "c"},
	}
	for _, e := range entries {
		if err := api.cache.Set(ctx, "prompt", e.context, "text", service.CacheOptions{
			WorkspaceID: e.workspace,
			CacheType:   e.cacheType,
			TTL:         time.Hour,
		}); err != nil {
			t.Fatalf("seed cache entry: %v", err)
		}
	}

	c, w := newTestContext(http.MethodDelete, "/api/cache?type="+service.CacheTypeDraftScore, nil, testWorkspace)
	api.ClearCache(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body clearCacheResponse
	decodeBody(t, w, &body)
	if body.Removed != 1 {
		t.Fatalf("expected 1 removed entry, got %d", body.Removed)
	}

	var remaining int64
	if err := gdb.Model(&db.CacheEntry{}).Count(&remaining).Error; err != nil {
		t.Fatalf("count cache entries: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("expected 2 remaining entries, got %d", remaining)
	}
}

func TestGetHashtagSuggestionsEmptyWorkspace(t *testing.T) {
	api, _ := setupTestAPI(t)

	c, w := newTestContext(http.MethodGet, "/api/hashtags/suggestions?limit=5", nil, testWorkspace)
	api.GetHashtagSuggestions(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Suggestions []service.HashtagSuggestion `json:"suggestions"`
	}
	decodeBody(t, w, &body)
	if len(body.Suggestions) != 0 {
		t.Fatalf("expected no suggestions, got %v", body.Suggestions)
	}
}

func TestCollectCompetitorMetricsUnavailablePlatform(t *testing.T) {
	api, _ := setupTestAPI(t)

	c, w := newTestContext(http.MethodPost, "/api/competitors/collect", map[string]any{
		"platform": "instagram",
		"handles":  []string{"@rival", "Rival"},
	}, testWorkspace)
	api.CollectCompetitorMetrics(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Results []service.CompetitorResult `json:"results"`
	}
	decodeBody(t, w, &body)
	if len(body.Results) != 1 {
		t.Fatalf("expected deduplicated handles, got %d results", len(body.Results))
	}
	if body.Results[0].Available {
		t.Fatalf("expected metrics to be unavailable without a fetcher")
	}
}

func TestCollectCompetitorMetricsUnknownPlatform(t *testing.T) {
	api, _ := setupTestAPI(t)

	c, w := newTestContext(http.MethodPost, "/api/competitors/collect", map[string]any{
		"platform": "myspace",
		"handles":  []string{"rival"},
	}, testWorkspace)
	api.CollectCompetitorMetrics(c)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
