package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/postpulse/internal/db"
)

type localClient struct {
	handler http.Handler
	jar     http.CookieJar
}

func newLocalClient(handler http.Handler) *localClient {
	jar, _ := cookiejar.New(nil)
	return &localClient{handler: handler, jar: jar}
}

func (c *localClient) Do(req *http.Request) *http.Response {
	for _, cookie := range c.jar.Cookies(req.URL) {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	resp := w.Result()
	c.jar.SetCookies(req.URL, resp.Cookies())
	return resp
}

func (c *localClient) call(t *testing.T, method, path string, payload any, wantStatus int, dst any) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, "http://postpulse.test"+path, body)
	req.Header.Set("Content-Type", "application/json")

	resp := c.Do(req)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected %d, got %d: %s", method, path, wantStatus, resp.StatusCode, raw)
	}
	if dst != nil {
		if err := json.Unmarshal(raw, dst); err != nil {
			t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
}

func TestE2E_WorkspaceFlow(t *testing.T) {
	r, gdb := setupTestRouter(t)
	client := newLocalClient(r)

	postedAt := time.Now().UTC().Add(-48 * time.Hour)
	seed := []struct {
		id          string
		caption     string
		impressions int64
		likes       int64
	}{
		{"p1", "New drop is live! Which color is your pick? #streetwear #ootd", 400, 40},
		{"p2", "Behind the scenes of the shoot #streetwear", 400, 20},
	}
	for _, s := range seed {
		post := db.Post{ID: s.id, WorkspaceID: "ws-e2e", Platform: db.PlatformInstagram, Caption: s.caption, PostedAt: &postedAt}
		if err := gdb.Create(&post).Error; err != nil {
			t.Fatalf("seed post: %v", err)
		}
		snap := db.MetricSnapshot{PostID: s.id, CapturedAt: postedAt.Add(24 * time.Hour), Impressions: s.impressions, Likes: s.likes}
		if err := gdb.Create(&snap).Error; err != nil {
			t.Fatalf("seed snapshot: %v", err)
		}
	}

	client.call(t, http.MethodPost, "/api/workspace", map[string]string{"workspace_id": "ws-e2e"}, http.StatusOK, nil)

	for _, s := range seed {
		client.call(t, http.MethodPost, "/api/posts/"+s.id+"/hashtags/sync", nil, http.StatusOK, nil)
	}

	var insights struct {
		Insights struct {
			TopByUsage []struct {
				Name string `json:"name"`
			} `json:"top_by_usage"`
		} `json:"insights"`
	}
	client.call(t, http.MethodGet, "/api/hashtags/insights", nil, http.StatusOK, &insights)
	if len(insights.Insights.TopByUsage) != 2 || insights.Insights.TopByUsage[0].Name != "streetwear" {
		t.Fatalf("expected streetwear to lead usage ranking, got %+v", insights.Insights.TopByUsage)
	}

	var summary struct {
		Summary struct {
			Platforms []struct {
				Platform         string `json:"platform"`
				PostsWithMetrics int    `json:"posts_with_metrics"`
			} `json:"platforms"`
		} `json:"summary"`
	}
	client.call(t, http.MethodGet, "/api/metrics/summary", nil, http.StatusOK, &summary)
	found := false
	for _, p := range summary.Summary.Platforms {
		if p.Platform == db.PlatformInstagram {
			found = true
			if p.PostsWithMetrics != 2 {
				t.Fatalf("expected 2 posts with metrics, got %d", p.PostsWithMetrics)
			}
		}
	}
	if !found {
		t.Fatalf("expected instagram summary, got %+v", summary.Summary.Platforms)
	}

	var created struct {
		Experiment struct {
			ID string `json:"ID"`
		} `json:"experiment"`
	}
	client.call(t, http.MethodPost, "/api/experiments", map[string]any{"name": "caption hooks", "post_ids": []string{"p1", "p2"}}, http.StatusCreated, &created)

	var completed struct {
		Results struct {
			WinnerLabel string `json:"winner_variant_label"`
			Status      string `json:"status"`
		} `json:"results"`
		Completed bool `json:"completed"`
	}
	client.call(t, http.MethodPost, "/api/experiments/"+created.Experiment.ID+"/complete", nil, http.StatusOK, &completed)
	if !completed.Completed || completed.Results.WinnerLabel != "A" || completed.Results.Status != db.ExperimentCompleted {
		t.Fatalf("expected variant A to win, got %+v", completed)
	}

	client.call(t, http.MethodPost, "/api/posts/p2/feedback", map[string]string{
		"event_type":  "edited",
		"new_caption": "BTS #streetwear",
	}, http.StatusCreated, nil)

	var prefs struct {
		Preferences struct {
			EventsConsidered int `json:"events_considered"`
		} `json:"preferences"`
		Summary string `json:"summary"`
	}
	client.call(t, http.MethodGet, "/api/preferences", nil, http.StatusOK, &prefs)
	if prefs.Preferences.EventsConsidered != 1 || prefs.Summary == "" {
		t.Fatalf("unexpected preferences %+v", prefs)
	}

	var scored struct {
		Score struct {
			PostID            string             `json:"post_id"`
			ReasoningFeatures map[string]float64 `json:"reasoning_features"`
		} `json:"score"`
	}
	client.call(t, http.MethodPost, "/api/posts/p1/score", nil, http.StatusOK, &scored)
	if scored.Score.PostID != "p1" || len(scored.Score.ReasoningFeatures) == 0 {
		t.Fatalf("unexpected score %+v", scored.Score)
	}
}
