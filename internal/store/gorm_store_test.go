package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/postpulse/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupStore(t *testing.T) (*GormStore, *gorm.DB) {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewGormStore(gdb), gdb
}

func TestReplacePostHashtagsSwapsLinks(t *testing.T) {
	st, gdb := setupStore(t)
	ctx := context.Background()
	if err := gdb.Create(&db.Post{ID: "p1", WorkspaceID: "ws", Platform: db.PlatformInstagram}).Error; err != nil {
		t.Fatalf("seed post: %v", err)
	}

	first := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := st.ReplacePostHashtags(ctx, "ws", "p1", []string{"go", "gin"}, first); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	later := first.Add(48 * time.Hour)
	if err := st.ReplacePostHashtags(ctx, "ws", "p1", []string{"go", "gorm"}, later); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	names, err := st.PostHashtagNames(ctx, "p1")
	if err != nil {
		t.Fatalf("PostHashtagNames: %v", err)
	}
	sort.Strings(names)
	if strings.Join(names, ",") != "go,gorm" {
		t.Fatalf("expected go,gorm, got %v", names)
	}

	var tag db.Hashtag
	if err := gdb.Where("workspace_id = ? AND name = ?", "ws", "go").First(&tag).Error; err != nil {
		t.Fatalf("load hashtag: %v", err)
	}
	if !tag.FirstUsedAt.Equal(first) || !tag.LastUsedAt.Equal(later) {
		t.Fatalf("expected first/last used %v/%v, got %v/%v", first, later, tag.FirstUsedAt, tag.LastUsedAt)
	}
}

func TestCreateExperimentConflictRollsBack(t *testing.T) {
	st, gdb := setupStore(t)
	ctx := context.Background()
	taken := "other-exp"
	posts := []db.Post{
		{ID: "p1", WorkspaceID: "ws", Platform: db.PlatformInstagram},
		{ID: "p2", WorkspaceID: "ws", Platform: db.PlatformInstagram, ExperimentID: &taken},
	}
	if err := gdb.Create(&posts).Error; err != nil {
		t.Fatalf("seed posts: %v", err)
	}

	exp := &db.Experiment{WorkspaceID: "ws", Name: "hooks", Status: db.ExperimentRunning}
	err := st.CreateExperiment(ctx, exp, map[string]string{"p1": "A", "p2": "B"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	var count int64
	gdb.Model(&db.Experiment{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected experiment insert to roll back, found %d", count)
	}
	var p1 db.Post
	if err := gdb.First(&p1, "id = ?", "p1").Error; err != nil {
		t.Fatalf("reload p1: %v", err)
	}
	if p1.ExperimentID != nil {
		t.Fatalf("expected p1 to remain unlinked")
	}
}

func TestCancelExperimentReleasesPosts(t *testing.T) {
	st, gdb := setupStore(t)
	ctx := context.Background()
	if err := gdb.Create(&db.Post{ID: "p1", WorkspaceID: "ws", Platform: db.PlatformInstagram}).Error; err != nil {
		t.Fatalf("seed post: %v", err)
	}
	exp := &db.Experiment{WorkspaceID: "ws", Name: "hooks", Status: db.ExperimentRunning}
	if err := st.CreateExperiment(ctx, exp, map[string]string{"p1": "A"}); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}

	if err := st.CancelExperiment(ctx, exp.ID); err != nil {
		t.Fatalf("CancelExperiment: %v", err)
	}
	var p1 db.Post
	if err := gdb.First(&p1, "id = ?", "p1").Error; err != nil {
		t.Fatalf("reload p1: %v", err)
	}
	if p1.ExperimentID != nil || p1.VariantLabel != nil {
		t.Fatalf("expected p1 to be released, got %+v", p1)
	}

	if err := st.CancelExperiment(ctx, exp.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on second cancel, got %v", err)
	}
}

func TestCancelExperimentRollsBackWhenUnlinkFails(t *testing.T) {
	st, gdb := setupStore(t)
	ctx := context.Background()
	if err := gdb.Create(&db.Post{ID: "p1", WorkspaceID: "ws", Platform: db.PlatformInstagram}).Error; err != nil {
		t.Fatalf("seed post: %v", err)
	}
	exp := &db.Experiment{WorkspaceID: "ws", Name: "hooks", Status: db.ExperimentRunning}
	if err := st.CreateExperiment(ctx, exp, map[string]string{"p1": "A"}); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}

	failPosts := errors.New("posts table unavailable")
	err := gdb.Callback().Update().Before("gorm:update").Register("test:fail_post_update", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "posts" {
			tx.AddError(failPosts)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	if err := st.CancelExperiment(ctx, exp.ID); !errors.Is(err, failPosts) {
		t.Fatalf("expected unlink failure, got %v", err)
	}
	if err := gdb.Callback().Update().Remove("test:fail_post_update"); err != nil {
		t.Fatalf("remove callback: %v", err)
	}

	reloaded, err := st.GetExperiment(ctx, exp.ID)
	if err != nil {
		t.Fatalf("GetExperiment: %v", err)
	}
	if reloaded.Status != db.ExperimentRunning {
		t.Fatalf("expected status to roll back to running, got %s", reloaded.Status)
	}
	var p1 db.Post
	if err := gdb.First(&p1, "id = ?", "p1").Error; err != nil {
		t.Fatalf("reload p1: %v", err)
	}
	if p1.ExperimentID == nil || *p1.ExperimentID != exp.ID {
		t.Fatalf("expected p1 to stay linked, got %+v", p1.ExperimentID)
	}

	if err := st.CancelExperiment(ctx, exp.ID); err != nil {
		t.Fatalf("retry after failure should succeed: %v", err)
	}
}

func TestLatestSnapshotsPicksNewest(t *testing.T) {
	st, gdb := setupStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	snaps := []db.MetricSnapshot{
		{PostID: "p1", CapturedAt: base, Likes: 1},
		{PostID: "p1", CapturedAt: base.Add(time.Hour), Likes: 5},
		{PostID: "p2", CapturedAt: base, Likes: 2},
	}
	if err := gdb.Create(&snaps).Error; err != nil {
		t.Fatalf("seed snapshots: %v", err)
	}

	latest, err := st.LatestSnapshots(ctx, []string{"p1", "p2", "p3"})
	if err != nil {
		t.Fatalf("LatestSnapshots: %v", err)
	}
	if len(latest) != 2 || latest["p1"].Likes != 5 || latest["p2"].Likes != 2 {
		t.Fatalf("unexpected latest snapshots %+v", latest)
	}
}

func TestDeleteCacheEntriesFiltersType(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()
	ws := "ws"
	expires := time.Now().Add(time.Hour)
	for i, cacheType := range []string{"draft_score", "draft_score", "experiment_summary"} {
		entry := &db.CacheEntry{CacheKey: string(rune('a' + i)), WorkspaceID: &ws, CacheType: cacheType, ResponseText: "x", ExpiresAt: expires}
		if err := st.UpsertCacheEntry(ctx, entry); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	removed, err := st.DeleteCacheEntries(ctx, ws, "draft_score")
	if err != nil {
		t.Fatalf("DeleteCacheEntries: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if _, err := st.GetCacheEntry(ctx, "c"); err != nil {
		t.Fatalf("expected experiment summary entry to survive: %v", err)
	}
	if _, err := st.GetCacheEntry(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
