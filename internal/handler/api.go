package handler

import (
	"time"

	"github.com/postpulse/internal/service"
	"github.com/postpulse/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options 汇总构造 API 时的可选依赖。
type Options struct {
	// Cache 为空时使用数据库缓存。
	Cache             service.ResponseCache
	Profile           *service.ScoringProfile
	Fetchers          []service.PlatformFetcher
	AISettings        service.SystemSettings
	AITimeout         time.Duration
	CacheTTL          time.Duration
	SummaryWindowDays int
	Logger            *zap.Logger
}

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db              *gorm.DB
	store           store.Store
	summaries       *service.MetricsSummaryService
	hashtags        *service.HashtagAnalyticsService
	hashtagSync     *service.HashtagSyncService
	personalization *service.PersonalizationService
	feedback        *service.FeedbackRecorder
	experiments     *service.ExperimentService
	scoring         *service.DraftScoringService
	explanation     *service.ExplanationService
	cache           service.ResponseCache
	competitors     *service.CompetitorMetricsCollector
	system          *service.SystemSettingService
	generator       *service.AITextGenerator
	windowDays      int
	logger          *zap.Logger
}

// NewAPI constructs a handler set with shared services.
func NewAPI(gdb *gorm.DB, opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	st := store.NewGormStore(gdb)

	cache := opts.Cache
	if cache == nil {
		cache = service.NewDBResponseCache(st, logger.Named("cache"))
	}
	profile := service.DefaultScoringProfile()
	if opts.Profile != nil {
		profile = *opts.Profile
	}
	windowDays := opts.SummaryWindowDays
	if windowDays <= 0 {
		windowDays = service.DefaultSummaryWindowDays
	}

	system := service.NewSystemSettingService(gdb).WithFallback(opts.AISettings)
	generator := service.NewAITextGenerator(system, opts.AITimeout, logger.Named("ai"))
	explanation := service.NewExplanationService(generator, cache, logger.Named("explanation")).
		WithSettings(system).
		WithTTL(opts.CacheTTL)

	summaries := service.NewMetricsSummaryService(st, logger.Named("summary"))
	hashtags := service.NewHashtagAnalyticsService(st, logger.Named("hashtags"))
	personalization := service.NewPersonalizationService(st, logger.Named("personalization"))

	return &API{
		db:              gdb,
		store:           st,
		summaries:       summaries,
		hashtags:        hashtags,
		hashtagSync:     service.NewHashtagSyncService(st, logger.Named("hashtags")),
		personalization: personalization,
		feedback:        service.NewFeedbackRecorder(st, logger.Named("feedback")),
		experiments:     service.NewExperimentService(st, explanation, logger.Named("experiments")),
		scoring:         service.NewDraftScoringService(st, summaries, hashtags, personalization, explanation, profile, logger.Named("scoring")),
		explanation:     explanation,
		cache:           cache,
		competitors:     service.NewCompetitorMetricsCollector(st, opts.Fetchers, logger.Named("competitors")),
		system:          system,
		generator:       generator,
		windowDays:      windowDays,
		logger:          logger,
	}
}

// Store exposes the persistence port for the CLI and tests.
func (a *API) Store() store.Store {
	return a.store
}

// Generator exposes the AI text generator so tests can swap its HTTP client.
func (a *API) Generator() *service.AITextGenerator {
	return a.generator
}
