package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/postpulse/internal/config"
	"github.com/postpulse/internal/db"
	"github.com/postpulse/internal/service"
	"github.com/postpulse/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errWorkspaceRequired = errors.New("--workspace is required (or set POSTPULSE_WORKSPACE)")

// cliOptions 保存全局 flag。
type cliOptions struct {
	verbose   bool
	workspace string
	dbDriver  string
	dbPath    string
	dbDSN     string
}

// app 持有一次命令执行期间共享的依赖。
type app struct {
	summaries       *service.MetricsSummaryService
	hashtags        *service.HashtagAnalyticsService
	hashtagSync     *service.HashtagSyncService
	personalization *service.PersonalizationService
	experiments     *service.ExperimentService
	scoring         *service.DraftScoringService
	cache           service.ResponseCache
	logger          *zap.Logger
	out             io.Writer
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	opts := &cliOptions{}
	var current *app

	root := &cobra.Command{
		Use:           "pulsectl",
		Short:         "Inspect PostPulse analytics from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := cfg.LogLevel
			if opts.verbose {
				level = "debug"
			}
			logger, err := config.NewLogger(level, opts.verbose)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, opts, logger, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			current = a
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if current != nil {
				_ = current.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVarP(&opts.workspace, "workspace", "w", os.Getenv("POSTPULSE_WORKSPACE"), "workspace id")
	flags.StringVar(&opts.dbDriver, "db-driver", cfg.DatabaseDriver, "database driver (sqlite or postgres)")
	flags.StringVar(&opts.dbPath, "db-path", cfg.DatabasePath, "sqlite database path")
	flags.StringVar(&opts.dbDSN, "db-dsn", cfg.DatabaseDSN, "postgres DSN")

	get := func() *app { return current }
	root.AddCommand(
		newSummaryCmd(get, opts, cfg.SummaryWindowDays),
		newHashtagsCmd(get, opts, cfg.SummaryWindowDays),
		newPreferencesCmd(get, opts),
		newScoreCmd(get),
		newSyncHashtagsCmd(get),
		newExperimentCmd(get),
		newClearCacheCmd(get, opts),
	)
	return root
}

func newApp(cfg config.AppConfig, opts *cliOptions, logger *zap.Logger, out io.Writer) (*app, error) {
	gdb, err := db.Open(db.Options{
		Driver: opts.dbDriver,
		Path:   opts.dbPath,
		DSN:    opts.dbDSN,
		Silent: !opts.verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	st := store.NewGormStore(gdb)

	profile := service.DefaultScoringProfile()
	if cfg.ScoringProfilePath != "" {
		if profile, err = service.LoadScoringProfile(cfg.ScoringProfilePath); err != nil {
			return nil, err
		}
	}

	cache := service.NewDBResponseCache(st, logger.Named("cache"))
	system := service.NewSystemSettingService(gdb).WithFallback(service.SystemSettings{
		AIProvider:     cfg.AIProvider,
		OpenAIAPIKey:   cfg.OpenAIAPIKey,
		DeepSeekAPIKey: cfg.DeepSeekAPIKey,
		GeminiAPIKey:   cfg.GeminiAPIKey,
	})
	generator := service.NewAITextGenerator(system, cfg.AITimeout, logger.Named("ai"))
	explanation := service.NewExplanationService(generator, cache, logger.Named("explanation")).
		WithSettings(system).
		WithTTL(cfg.CacheTTL)

	summaries := service.NewMetricsSummaryService(st, logger.Named("summary"))
	hashtags := service.NewHashtagAnalyticsService(st, logger.Named("hashtags"))
	personalization := service.NewPersonalizationService(st, logger.Named("personalization"))

	return &app{
		summaries:       summaries,
		hashtags:        hashtags,
		hashtagSync:     service.NewHashtagSyncService(st, logger.Named("hashtags")),
		personalization: personalization,
		experiments:     service.NewExperimentService(st, explanation, logger.Named("experiments")),
		scoring:         service.NewDraftScoringService(st, summaries, hashtags, personalization, explanation, profile, logger.Named("scoring")),
		cache:           cache,
		logger:          logger,
		out:             out,
	}, nil
}

func requireWorkspace(opts *cliOptions) (string, error) {
	ws := strings.TrimSpace(opts.workspace)
	if ws == "" {
		return "", errWorkspaceRequired
	}
	return ws, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
