package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"time"

	"github.com/postpulse/internal/config"
	"github.com/postpulse/internal/db"
	"github.com/postpulse/internal/service"
	"github.com/postpulse/internal/store"
	"gorm.io/gorm"
)

const demoWorkspace = "demo"

// 测试数据生成器
func main() {
	cfg := config.Load()
	gdb, err := db.Open(db.Options{
		Driver: cfg.DatabaseDriver,
		Path:   cfg.DatabasePath,
		DSN:    cfg.DatabaseDSN,
		Silent: true,
	})
	if err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	workspace := demoWorkspace
	if len(os.Args) > 1 {
		workspace = os.Args[1]
	}

	fmt.Println("开始生成测试数据...")
	summary, err := seedDemoData(gdb, workspace, time.Now().UTC(), rand.New(rand.NewPCG(42, 7)))
	if err != nil {
		log.Fatal("生成测试数据失败:", err)
	}

	fmt.Println("测试数据生成完成！")
	fmt.Printf("工作区: %s\n", workspace)
	fmt.Printf("文章: %d 篇，快照: %d 条，反馈: %d 条\n", summary.Posts, summary.Snapshots, summary.Feedback)
	fmt.Printf("实验: %s\n", summary.ExperimentID)
}

type seedSummary struct {
	Posts        int
	Snapshots    int
	Feedback     int
	ExperimentID string
}

var demoCaptions = map[string][]string{
	db.PlatformInstagram: {
		"Golden hour never misses. Where are you watching the sunset tonight? #sunset #photography #travel",
		"Three tips for better phone portraits, save this for later #photography #tips",
		"New preset pack is live! Link in bio #lightroom #photography #presets",
		"Weekend market haul 🍓🥖 #foodie #weekend",
		"Rainy streets, neon lights #streetphotography #citylife #photography",
	},
	db.PlatformTikTok: {
		"POV: you finally nailed the shot #photography #fyp",
		"Editing this in 30 seconds #lightroom #tutorial",
		"Which one do you prefer, A or B? #photography #poll",
	},
	db.PlatformLinkedIn: {
		"We grew our studio bookings 40% this quarter. Here is what changed in our process and what we would do differently. #smallbusiness #growth",
		"Hiring: junior photo editor, remote friendly. Share with someone who should see this #hiring",
	},
}

// seedDemoData 为工作区生成已发布文章、指标快照、标签、反馈与一次实验。
func seedDemoData(gdb *gorm.DB, workspaceID string, now time.Time, rng *rand.Rand) (seedSummary, error) {
	var summary seedSummary
	ctx := context.Background()

	// 清理旧数据
	if err := gdb.Where("workspace_id = ?", workspaceID).Delete(&db.FeedbackEvent{}).Error; err != nil {
		return summary, err
	}
	if err := gdb.Where("workspace_id = ?", workspaceID).Delete(&db.Experiment{}).Error; err != nil {
		return summary, err
	}
	var oldIDs []string
	if err := gdb.Model(&db.Post{}).Where("workspace_id = ?", workspaceID).Pluck("id", &oldIDs).Error; err != nil {
		return summary, err
	}
	if len(oldIDs) > 0 {
		if err := gdb.Where("post_id IN ?", oldIDs).Delete(&db.MetricSnapshot{}).Error; err != nil {
			return summary, err
		}
		if err := gdb.Where("post_id IN ?", oldIDs).Delete(&db.PostHashtag{}).Error; err != nil {
			return summary, err
		}
		if err := gdb.Where("id IN ?", oldIDs).Delete(&db.Post{}).Error; err != nil {
			return summary, err
		}
	}

	st := store.NewGormStore(gdb)
	hashtagSync := service.NewHashtagSyncService(st, nil).WithClock(func() time.Time { return now })
	feedback := service.NewFeedbackRecorder(st, nil).WithClock(func() time.Time { return now })

	var experimentPosts []string
	for _, platform := range db.Platforms {
		for i, caption := range demoCaptions[platform] {
			postedAt := now.AddDate(0, 0, -(i*5 + rng.IntN(4) + 1)).Truncate(time.Hour)
			post := db.Post{
				WorkspaceID: workspaceID,
				Platform:    platform,
				Caption:     caption,
				PostedAt:    &postedAt,
			}
			if err := gdb.Create(&post).Error; err != nil {
				return summary, fmt.Errorf("create post: %w", err)
			}
			summary.Posts++

			if _, err := hashtagSync.SyncPostHashtags(ctx, post.ID); err != nil {
				return summary, err
			}

			// 每篇文章两次快照，后一次累计更多互动
			reach := int64(800 + rng.IntN(4000))
			for step := int64(1); step <= 2; step++ {
				snap := db.MetricSnapshot{
					PostID:      post.ID,
					CapturedAt:  postedAt.Add(time.Duration(step) * 12 * time.Hour),
					Impressions: reach * step / 2,
					Likes:       int64(rng.IntN(150)) * step,
					Comments:    int64(rng.IntN(30)) * step,
					Shares:      int64(rng.IntN(20)) * step,
					Saves:       int64(rng.IntN(25)) * step,
				}
				if platform == db.PlatformTikTok {
					snap.Views = reach * step
				}
				if err := gdb.Create(&snap).Error; err != nil {
					return summary, fmt.Errorf("create snapshot: %w", err)
				}
				summary.Snapshots++
			}

			if platform == db.PlatformInstagram && len(experimentPosts) < 2 {
				experimentPosts = append(experimentPosts, post.ID)
			}
			if platform == db.PlatformInstagram && i%2 == 0 {
				runes := []rune(caption)
				edited := string(runes[:len(runes)/2])
				if _, err := feedback.RecordEdit(ctx, workspaceID, post.ID, "caption_generator", caption, edited); err != nil {
					return summary, err
				}
				summary.Feedback++
			}
		}
	}

	experiments := service.NewExperimentService(st, nil, nil)
	exp, _, err := experiments.CreateExperiment(ctx, service.CreateExperimentInput{
		WorkspaceID: workspaceID,
		Name:        "Question hook vs. tips hook",
		Type:        "caption",
		PostIDs:     experimentPosts,
	})
	if err != nil {
		return summary, fmt.Errorf("create experiment: %w", err)
	}
	summary.ExperimentID = exp.ID
	return summary, nil
}
