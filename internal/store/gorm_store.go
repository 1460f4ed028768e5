package store

import (
	"context"
	"errors"
	"time"

	"github.com/postpulse/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const inClauseChunk = 500

// GormStore implements Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GormStore instance.
func NewGormStore(gdb *gorm.DB) *GormStore {
	return &GormStore{db: gdb}
}

// DB exposes the underlying gorm instance.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) GetPost(ctx context.Context, id string) (*db.Post, error) {
	var post db.Post
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &post, nil
}

func (s *GormStore) ListPostsByIDs(ctx context.Context, ids []string) ([]db.Post, error) {
	posts := make([]db.Post, 0, len(ids))
	for _, chunk := range chunkIDs(ids) {
		var batch []db.Post
		if err := s.db.WithContext(ctx).Where("id IN ?", chunk).Find(&batch).Error; err != nil {
			return nil, err
		}
		posts = append(posts, batch...)
	}
	return posts, nil
}

func (s *GormStore) ListPostedSince(ctx context.Context, workspaceID string, since time.Time) ([]db.Post, error) {
	var posts []db.Post
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND posted_at IS NOT NULL AND posted_at >= ?", workspaceID, since).
		Order("posted_at asc").
		Order("id asc").
		Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *GormStore) ListExperimentPosts(ctx context.Context, experimentID string) ([]db.Post, error) {
	var posts []db.Post
	if err := s.db.WithContext(ctx).
		Where("experiment_id = ?", experimentID).
		Order("variant_label asc").
		Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *GormStore) UpdatePostScore(ctx context.Context, postID string, update ScoreUpdate) error {
	result := s.db.WithContext(ctx).Model(&db.Post{}).Where("id = ?", postID).Updates(map[string]interface{}{
		"predicted_score_label":       update.Label,
		"predicted_score_numeric":     update.Numeric,
		"predicted_score_explanation": update.Explanation,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) AppendSnapshot(ctx context.Context, snap *db.MetricSnapshot) error {
	return s.db.WithContext(ctx).Create(snap).Error
}

// LatestSnapshots returns the snapshot with the greatest captured_at per post.
// Posts without snapshots are absent from the map.
func (s *GormStore) LatestSnapshots(ctx context.Context, postIDs []string) (map[string]db.MetricSnapshot, error) {
	result := make(map[string]db.MetricSnapshot, len(postIDs))
	for _, chunk := range chunkIDs(postIDs) {
		var snaps []db.MetricSnapshot
		if err := s.db.WithContext(ctx).
			Where("post_id IN ?", chunk).
			Order("captured_at asc").
			Order("id asc").
			Find(&snaps).Error; err != nil {
			return nil, err
		}
		for _, snap := range snaps {
			current, ok := result[snap.PostID]
			if !ok || !snap.CapturedAt.Before(current.CapturedAt) {
				result[snap.PostID] = snap
			}
		}
	}
	return result, nil
}

func (s *GormStore) ListHashtagUsage(ctx context.Context, workspaceID string, since time.Time) ([]HashtagUsageRow, error) {
	var rows []HashtagUsageRow
	if err := s.db.WithContext(ctx).Table("hashtags h").
		Select("h.id AS hashtag_id, h.name AS name, p.id AS post_id, p.platform AS platform").
		Joins("JOIN post_hashtags ph ON ph.hashtag_id = h.id").
		Joins("JOIN posts p ON p.id = ph.post_id").
		Where("h.workspace_id = ? AND p.posted_at IS NOT NULL AND p.posted_at >= ?", workspaceID, since).
		Order("h.name asc").
		Order("p.id asc").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *GormStore) PostHashtagNames(ctx context.Context, postID string) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).Table("hashtags h").
		Joins("JOIN post_hashtags ph ON ph.hashtag_id = h.id").
		Where("ph.post_id = ?", postID).
		Order("h.name asc").
		Pluck("h.name", &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}

// ReplacePostHashtags upserts the named hashtags and swaps the post's links in one transaction.
func (s *GormStore) ReplacePostHashtags(ctx context.Context, workspaceID, postID string, names []string, seenAt time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := make([]uint, 0, len(names))
		for _, name := range names {
			tag := db.Hashtag{WorkspaceID: workspaceID, Name: name, FirstUsedAt: seenAt, LastUsedAt: seenAt}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "name"}},
				DoUpdates: clause.Assignments(map[string]interface{}{"last_used_at": seenAt}),
			}).Create(&tag).Error; err != nil {
				return err
			}
			var stored db.Hashtag
			if err := tx.Where("workspace_id = ? AND name = ?", workspaceID, name).First(&stored).Error; err != nil {
				return err
			}
			ids = append(ids, stored.ID)
		}

		if err := tx.Where("post_id = ?", postID).Delete(&db.PostHashtag{}).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		links := make([]db.PostHashtag, 0, len(ids))
		for _, id := range ids {
			links = append(links, db.PostHashtag{PostID: postID, HashtagID: id})
		}
		return tx.Create(&links).Error
	})
}

func (s *GormStore) AppendFeedback(ctx context.Context, event *db.FeedbackEvent) error {
	return s.db.WithContext(ctx).Create(event).Error
}

func (s *GormStore) ListFeedback(ctx context.Context, workspaceID string, since time.Time, eventTypes []string) ([]db.FeedbackEvent, error) {
	query := s.db.WithContext(ctx).
		Where("workspace_id = ? AND created_at >= ?", workspaceID, since)
	if len(eventTypes) > 0 {
		query = query.Where("event_type IN ?", eventTypes)
	}

	var events []db.FeedbackEvent
	if err := query.Order("created_at asc").Order("id asc").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (s *GormStore) GetExperiment(ctx context.Context, id string) (*db.Experiment, error) {
	var exp db.Experiment
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&exp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &exp, nil
}

// CreateExperiment inserts the experiment and assigns every labelled post in
// one transaction. A post that already carries an experiment id aborts the
// whole write with ErrConflict.
func (s *GormStore) CreateExperiment(ctx context.Context, exp *db.Experiment, labels map[string]string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(exp).Error; err != nil {
			return err
		}
		for postID, label := range labels {
			result := tx.Model(&db.Post{}).
				Where("id = ? AND workspace_id = ? AND experiment_id IS NULL", postID, exp.WorkspaceID).
				Updates(map[string]interface{}{
					"experiment_id": exp.ID,
					"variant_label": label,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrConflict
			}
		}
		return nil
	})
}

func (s *GormStore) UpdateExperiment(ctx context.Context, id string, update ExperimentUpdate) error {
	values := map[string]interface{}{}
	if update.Status != "" {
		values["status"] = update.Status
	}
	if update.WinnerVariantLabel != nil {
		values["winner_variant_label"] = *update.WinnerVariantLabel
	}
	if update.WinnerReason != nil {
		values["winner_reason"] = *update.WinnerReason
	}
	if update.Summary != nil {
		values["summary"] = *update.Summary
	}
	if len(values) == 0 {
		return nil
	}

	result := s.db.WithContext(ctx).Model(&db.Experiment{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelExperiment marks a pending or running experiment cancelled and releases
// its posts in one transaction. A closed or missing experiment yields ErrConflict.
func (s *GormStore) CancelExperiment(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&db.Experiment{}).
			Where("id = ? AND status NOT IN ?", id, []string{db.ExperimentCompleted, db.ExperimentCancelled}).
			Update("status", db.ExperimentCancelled)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConflict
		}
		return tx.Model(&db.Post{}).
			Where("experiment_id = ?", id).
			Updates(map[string]interface{}{"experiment_id": nil, "variant_label": nil}).Error
	})
}

func (s *GormStore) GetCacheEntry(ctx context.Context, key string) (*db.CacheEntry, error) {
	var entry db.CacheEntry
	if err := s.db.WithContext(ctx).Where("cache_key = ?", key).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *GormStore) UpsertCacheEntry(ctx context.Context, entry *db.CacheEntry) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"workspace_id", "cache_type", "response_text", "expires_at", "updated_at",
		}),
	}).Create(entry).Error
}

func (s *GormStore) DeleteCacheEntry(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("cache_key = ?", key).Delete(&db.CacheEntry{}).Error
}

func (s *GormStore) DeleteCacheEntries(ctx context.Context, workspaceID, cacheType string) (int64, error) {
	query := s.db.WithContext(ctx).Where("workspace_id = ?", workspaceID)
	if cacheType != "" {
		query = query.Where("cache_type = ?", cacheType)
	}
	result := query.Delete(&db.CacheEntry{})
	return result.RowsAffected, result.Error
}

func (s *GormStore) AppendCompetitorSnapshot(ctx context.Context, snap *db.CompetitorSnapshot) error {
	return s.db.WithContext(ctx).Create(snap).Error
}

func chunkIDs(ids []string) [][]string {
	if len(ids) == 0 {
		return nil
	}
	chunks := make([][]string, 0, len(ids)/inClauseChunk+1)
	for start := 0; start < len(ids); start += inClauseChunk {
		end := start + inClauseChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
