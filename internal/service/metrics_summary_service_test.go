package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/postpulse/internal/db"
)

func TestSummarizeMetricsAggregatesPerPlatform(t *testing.T) {
	st := setupServiceTestStore(t)

	monday := time.Date(2025, 6, 23, 10, 0, 0, 0, time.UTC)
	p1 := seedPost(t, st, db.Post{ID: "p1", Caption: "monday post", PostedAt: timePtr(monday)})
	p2 := seedPost(t, st, db.Post{ID: "p2", PostedAt: timePtr(monday.AddDate(0, 0, 1).Add(9 * time.Hour))})
	seedPost(t, st, db.Post{ID: "p3", PostedAt: timePtr(monday.AddDate(0, 0, 2))})
	p4 := seedPost(t, st, db.Post{ID: "p4", Platform: db.PlatformTikTok, PostedAt: timePtr(monday.AddDate(0, 0, 3))})
	seedPost(t, st, db.Post{ID: "old", PostedAt: timePtr(fixedNow.AddDate(0, 0, -90))})
	seedPost(t, st, db.Post{ID: "other", WorkspaceID: "ws-other", PostedAt: timePtr(monday)})
	seedPost(t, st, db.Post{ID: "draft"})

	seedSnapshot(t, st, db.MetricSnapshot{PostID: p1.ID, CapturedAt: fixedNow.Add(-48 * time.Hour), Impressions: 100, Likes: 1})
	seedSnapshot(t, st, db.MetricSnapshot{PostID: p1.ID, Impressions: 1000, Likes: 40, Comments: 10})
	seedSnapshot(t, st, db.MetricSnapshot{PostID: p2.ID, Impressions: 1000, Likes: 20})
	seedSnapshot(t, st, db.MetricSnapshot{PostID: p4.ID, Views: 2000, Likes: 100})
	seedSnapshot(t, st, db.MetricSnapshot{PostID: "other", Impressions: 10, Likes: 10})

	svc := NewMetricsSummaryService(st, nil).WithClock(clockAt(fixedNow))
	summary := svc.SummarizeMetrics(context.Background(), testWorkspace, 60)

	if len(summary.Platforms) != 2 {
		t.Fatalf("expected 2 platforms, got %#v", summary.Platforms)
	}
	ig := summary.Platform(db.PlatformInstagram)
	if ig == nil {
		t.Fatalf("missing instagram summary")
	}
	if ig.PostCount != 3 || ig.PostsWithMetrics != 2 {
		t.Fatalf("unexpected counts: %+v", ig)
	}
	if math.Abs(ig.AvgEngagementRate-3.5) > 1e-9 {
		t.Fatalf("expected avg rate 3.5, got %v", ig.AvgEngagementRate)
	}
	if math.Abs(ig.AvgLikes-30) > 1e-9 || math.Abs(ig.AvgImpressions-1000) > 1e-9 {
		t.Fatalf("unexpected averages: %+v", ig)
	}
	if math.Abs(ig.PostsPerWeek-0.35) > 1e-9 {
		t.Fatalf("expected 0.35 posts per week, got %v", ig.PostsPerWeek)
	}
	if ig.BestDay != "Monday" || ig.BestTimeBucket != "09-12" {
		t.Fatalf("unexpected best slot: %s %s", ig.BestDay, ig.BestTimeBucket)
	}
	if len(ig.TopPosts) != 2 || ig.TopPosts[0].PostID != "p1" {
		t.Fatalf("unexpected top posts: %#v", ig.TopPosts)
	}

	tt := summary.Platform(db.PlatformTikTok)
	if tt == nil || math.Abs(tt.AvgEngagementRate-5) > 1e-9 {
		t.Fatalf("expected tiktok rate to use views, got %#v", tt)
	}
}

func TestSummarizeMetricsBreaksTiesByName(t *testing.T) {
	st := setupServiceTestStore(t)

	monday := time.Date(2025, 6, 23, 19, 0, 0, 0, time.UTC)
	tuesday := time.Date(2025, 6, 24, 10, 0, 0, 0, time.UTC)
	a := seedPost(t, st, db.Post{ID: "a", PostedAt: timePtr(tuesday)})
	b := seedPost(t, st, db.Post{ID: "b", PostedAt: timePtr(monday)})
	seedSnapshot(t, st, db.MetricSnapshot{PostID: a.ID, Impressions: 100, Likes: 3})
	seedSnapshot(t, st, db.MetricSnapshot{PostID: b.ID, Impressions: 200, Likes: 6})

	summary := NewMetricsSummaryService(st, nil).WithClock(clockAt(fixedNow)).
		SummarizeMetrics(context.Background(), testWorkspace, 30)

	ig := summary.Platform(db.PlatformInstagram)
	if ig == nil {
		t.Fatalf("missing instagram summary")
	}
	if ig.BestDay != "Monday" {
		t.Fatalf("expected Monday to win the tie, got %s", ig.BestDay)
	}
	if ig.BestTimeBucket != "09-12" {
		t.Fatalf("expected 09-12 to win the tie, got %s", ig.BestTimeBucket)
	}
}

func TestSummarizeMetricsEmptyWorkspace(t *testing.T) {
	st := setupServiceTestStore(t)
	svc := NewMetricsSummaryService(st, nil).WithClock(clockAt(fixedNow))

	summary := svc.SummarizeMetrics(context.Background(), "ws-empty", 0)
	if summary.WindowDays != DefaultSummaryWindowDays {
		t.Fatalf("expected default window, got %d", summary.WindowDays)
	}
	if len(summary.Platforms) != 0 {
		t.Fatalf("expected no platforms, got %#v", summary.Platforms)
	}
	if summary.Platform(db.PlatformInstagram) != nil {
		t.Fatalf("expected nil platform summary")
	}
}

func TestTimeBucketForHour(t *testing.T) {
	cases := map[int]string{0: "00-03", 2: "00-03", 3: "03-06", 11: "09-12", 23: "21-24", 24: "", -1: ""}
	for hour, want := range cases {
		if got := TimeBucketForHour(hour); got != want {
			t.Fatalf("hour %d: expected %q, got %q", hour, want, got)
		}
	}
}
