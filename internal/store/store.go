// Package store defines the persistence port used by the analytics engines
// and its gorm-backed implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/postpulse/internal/db"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional write loses to a concurrent writer.
	ErrConflict = errors.New("conflicting write")
)

// HashtagUsageRow joins one hashtag to one post that references it.
type HashtagUsageRow struct {
	HashtagID uint
	Name      string
	PostID    string
	Platform  string
}

// ExperimentUpdate carries the mutable experiment columns.
type ExperimentUpdate struct {
	Status             string
	WinnerVariantLabel *string
	WinnerReason       *string
	Summary            *string
}

// ScoreUpdate carries the predicted score columns written back onto a post.
type ScoreUpdate struct {
	Label       string
	Numeric     float64
	Explanation *string
}

// Posts reads and updates posts.
type Posts interface {
	GetPost(ctx context.Context, id string) (*db.Post, error)
	ListPostsByIDs(ctx context.Context, ids []string) ([]db.Post, error)
	ListPostedSince(ctx context.Context, workspaceID string, since time.Time) ([]db.Post, error)
	ListExperimentPosts(ctx context.Context, experimentID string) ([]db.Post, error)
	UpdatePostScore(ctx context.Context, postID string, update ScoreUpdate) error
}

// Snapshots reads the append-only metric history.
type Snapshots interface {
	AppendSnapshot(ctx context.Context, snap *db.MetricSnapshot) error
	LatestSnapshots(ctx context.Context, postIDs []string) (map[string]db.MetricSnapshot, error)
}

// Hashtags manages hashtag rows and post links.
type Hashtags interface {
	ListHashtagUsage(ctx context.Context, workspaceID string, since time.Time) ([]HashtagUsageRow, error)
	PostHashtagNames(ctx context.Context, postID string) ([]string, error)
	ReplacePostHashtags(ctx context.Context, workspaceID, postID string, names []string, seenAt time.Time) error
}

// Feedback persists and lists feedback events.
type Feedback interface {
	AppendFeedback(ctx context.Context, event *db.FeedbackEvent) error
	ListFeedback(ctx context.Context, workspaceID string, since time.Time, eventTypes []string) ([]db.FeedbackEvent, error)
}

// Experiments persists experiments and variant assignments.
type Experiments interface {
	GetExperiment(ctx context.Context, id string) (*db.Experiment, error)
	CreateExperiment(ctx context.Context, exp *db.Experiment, labels map[string]string) error
	UpdateExperiment(ctx context.Context, id string, update ExperimentUpdate) error
	CancelExperiment(ctx context.Context, id string) error
}

// Cache persists generated response text.
type Cache interface {
	GetCacheEntry(ctx context.Context, key string) (*db.CacheEntry, error)
	UpsertCacheEntry(ctx context.Context, entry *db.CacheEntry) error
	DeleteCacheEntry(ctx context.Context, key string) error
	DeleteCacheEntries(ctx context.Context, workspaceID, cacheType string) (int64, error)
}

// Competitors persists competitor profile snapshots.
type Competitors interface {
	AppendCompetitorSnapshot(ctx context.Context, snap *db.CompetitorSnapshot) error
}

// Store is the full persistence port.
type Store interface {
	Posts
	Snapshots
	Hashtags
	Feedback
	Experiments
	Cache
	Competitors
}
