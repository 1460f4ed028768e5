package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/postpulse/internal/db"
	"github.com/postpulse/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testWorkspace = "ws-test"

var fixedNow = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

func clockAt(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func setupServiceTestStore(t *testing.T) *store.GormStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
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
	return store.NewGormStore(gdb)
}

func seedPost(t *testing.T, st *store.GormStore, post db.Post) db.Post {
	t.Helper()
	if post.WorkspaceID == "" {
		post.WorkspaceID = testWorkspace
	}
	if post.Platform == "" {
		post.Platform = db.PlatformInstagram
	}
	if err := st.DB().Create(&post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	return post
}

func seedSnapshot(t *testing.T, st *store.GormStore, snap db.MetricSnapshot) {
	t.Helper()
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = fixedNow.Add(-time.Hour)
	}
	if err := st.DB().Create(&snap).Error; err != nil {
		t.Fatalf("create snapshot: %v", err)
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func strPtr(s string) *string {
	return &s
}
