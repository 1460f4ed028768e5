package main

import (
	"fmt"

	"github.com/postpulse/internal/service"
	"github.com/spf13/cobra"
)

type appGetter func() *app

func newSummaryCmd(get appGetter, opts *cliOptions, defaultWindow int) *cobra.Command {
	var window int
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the rolling per-platform metrics summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := requireWorkspace(opts)
			if err != nil {
				return err
			}
			a := get()
			return a.printJSON(a.summaries.SummarizeMetrics(cmd.Context(), ws, window))
		},
	}
	cmd.Flags().IntVar(&window, "window", defaultWindow, "look-back window in days")
	return cmd
}

func newHashtagsCmd(get appGetter, opts *cliOptions, defaultWindow int) *cobra.Command {
	var (
		window int
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "hashtags",
		Short: "Print hashtag suggestions ranked by engagement and reach",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := requireWorkspace(opts)
			if err != nil {
				return err
			}
			a := get()
			insights := a.hashtags.RankHashtags(cmd.Context(), ws, window)
			return a.printJSON(service.SuggestHashtags(insights, limit))
		},
	}
	cmd.Flags().IntVar(&window, "window", defaultWindow, "look-back window in days")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of suggestions")
	return cmd
}

func newPreferencesCmd(get appGetter, opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "preferences",
		Short: "Print writing preferences learned from feedback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := requireWorkspace(opts)
			if err != nil {
				return err
			}
			a := get()
			prefs := a.personalization.ProfilePreferences(cmd.Context(), ws)
			if _, err := fmt.Fprintln(a.out, service.RenderPreferences(prefs)); err != nil {
				return err
			}
			return nil
		},
	}
}

func newScoreCmd(get appGetter) *cobra.Command {
	var explain bool
	cmd := &cobra.Command{
		Use:   "score <post-id>",
		Short: "Score a draft and store the prediction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			result, err := a.scoring.ScorePost(cmd.Context(), args[0], service.ScoreOptions{Explain: explain})
			if err != nil {
				return err
			}
			return a.printJSON(result)
		},
	}
	cmd.Flags().BoolVar(&explain, "explain", false, "generate a natural-language explanation")
	return cmd
}

func newSyncHashtagsCmd(get appGetter) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-hashtags <post-id>",
		Short: "Re-parse a post caption and relink its hashtags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			names, err := a.hashtagSync.SyncPostHashtags(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJSON(names)
		},
	}
}

func newExperimentCmd(get appGetter) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "Inspect and close A/B experiments",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "results <experiment-id>",
			Short: "Compute current results without changing status",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a := get()
				results, err := a.experiments.ComputeExperimentResults(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.printJSON(results)
			},
		},
		&cobra.Command{
			Use:   "complete <experiment-id>",
			Short: "Mark the experiment completed when a winner exists",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a := get()
				results, err := a.experiments.CompleteExperiment(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.printJSON(results)
			},
		},
		&cobra.Command{
			Use:   "cancel <experiment-id>",
			Short: "Cancel the experiment and release its posts",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a := get()
				if err := a.experiments.CancelExperiment(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(a.out, "experiment %s cancelled\n", args[0])
				return err
			},
		},
	)
	return cmd
}

func newClearCacheCmd(get appGetter, opts *cliOptions) *cobra.Command {
	var cacheType string
	cmd := &cobra.Command{
		Use:   "clear-cache",
		Short: "Delete cached explanations for the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := requireWorkspace(opts)
			if err != nil {
				return err
			}
			a := get()
			removed, err := a.cache.ClearWorkspace(cmd.Context(), ws, cacheType)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "removed %d cached entries\n", removed)
			return err
		},
	}
	cmd.Flags().StringVar(&cacheType, "type", "", "limit to one cache type (draft_score, experiment_summary)")
	return cmd
}
