package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/postpulse/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	text  string
	err   error
	calls int
}

func (g *stubGenerator) Generate(context.Context, string, string) (string, error) {
	g.calls++
	return g.text, g.err
}

func TestAssignVariantsIgnoresInputOrder(t *testing.T) {
	first := AssignVariants([]string{"c", "a", "b"})
	second := AssignVariants([]string{"b", "c", "a", "a", " "})

	want := map[string]string{"a": "A", "b": "B", "c": "C"}
	if diff := cmp.Diff(want, first); diff != "" {
		t.Fatalf("labels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("labels should not depend on input order (-first +second):\n%s", diff)
	}
}

func TestAssignVariantsBeyondTen(t *testing.T) {
	ids := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		ids = append(ids, fmt.Sprintf("post-%02d", i))
	}
	labels := AssignVariants(ids)

	assert.Equal(t, "A", labels["post-00"])
	assert.Equal(t, "J", labels["post-09"])
	assert.Equal(t, "A1", labels["post-10"])
	assert.Equal(t, "B1", labels["post-11"])
}

func TestEvaluateVariants(t *testing.T) {
	cases := []struct {
		name       string
		variants   []VariantResult
		winner     string
		margin     float64
		reasonPart string
	}{
		{
			name: "clear winner",
			variants: []VariantResult{
				{Label: "B", HasData: true, Impressions: 300, Engagement: 12, EngagementRate: 4},
				{Label: "A", HasData: true, Impressions: 400, Engagement: 20, EngagementRate: 5},
			},
			winner:     "A",
			margin:     25,
			reasonPart: "5.00% engagement rate versus 4.00%",
		},
		{
			name: "below impression floor",
			variants: []VariantResult{
				{Label: "A", HasData: true, Impressions: 250, EngagementRate: 5},
				{Label: "B", HasData: true, Impressions: 150, EngagementRate: 4},
			},
			reasonPart: "Insufficient data",
		},
		{
			name: "only one variant has data",
			variants: []VariantResult{
				{Label: "A", HasData: true, Impressions: 900, EngagementRate: 5},
				{Label: "B"},
			},
			reasonPart: "Insufficient data",
		},
		{
			name: "slight lead",
			variants: []VariantResult{
				{Label: "A", HasData: true, Impressions: 500, EngagementRate: 5.2},
				{Label: "B", HasData: true, Impressions: 500, EngagementRate: 5.0},
			},
			winner:     "A",
			margin:     4,
			reasonPart: "slightly higher",
		},
		{
			name: "tie",
			variants: []VariantResult{
				{Label: "A", HasData: true, Impressions: 500, EngagementRate: 3},
				{Label: "B", HasData: true, Impressions: 500, EngagementRate: 3},
			},
			reasonPart: "similarly",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			results := EvaluateVariants(ExperimentResults{}, tc.variants)
			assert.Equal(t, tc.winner, results.WinnerLabel)
			assert.InDelta(t, tc.margin, results.MarginPercent, 1e-6)
			assert.Contains(t, results.WinnerReason, tc.reasonPart)
			assert.Equal(t, "A", results.Variants[0].Label)
		})
	}
}

func TestExperimentLifecycle(t *testing.T) {
	st := setupServiceTestStore(t)
	ctx := context.Background()
	seedPost(t, st, db.Post{ID: "p-b", Caption: "second"})
	seedPost(t, st, db.Post{ID: "p-a", Caption: "first"})
	seedPost(t, st, db.Post{ID: "p-c", Caption: "third"})

	svc := NewExperimentService(st, nil, nil)

	exp, variants, err := svc.CreateExperiment(ctx, CreateExperimentInput{WorkspaceID: testWorkspace, Name: "hook test", PostIDs: []string{"p-b", " p-a ", "p-b"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"p-a": "A", "p-b": "B"}, variants)
	assert.Equal(t, db.ExperimentRunning, exp.Status)

	post, err := st.GetPost(ctx, "p-a")
	require.NoError(t, err)
	require.NotNil(t, post.VariantLabel)
	assert.Equal(t, "A", *post.VariantLabel)

	_, _, err = svc.CreateExperiment(ctx, CreateExperimentInput{WorkspaceID: testWorkspace, Name: "again", PostIDs: []string{"p-a", "p-c"}})
	require.ErrorIs(t, err, ErrPostInExperiment)

	results, err := svc.ComputeExperimentResults(ctx, exp.ID)
	require.NoError(t, err)
	assert.False(t, results.HasWinner())
	assert.Len(t, results.Variants, 2)

	seedSnapshot(t, st, db.MetricSnapshot{PostID: "p-a", Impressions: 400, Likes: 20})
	seedSnapshot(t, st, db.MetricSnapshot{PostID: "p-b", Impressions: 300, Likes: 12})

	results, err = svc.ComputeExperimentResults(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", results.WinnerLabel)
	assert.Equal(t, int64(700), results.TotalImpressions)
	assert.Equal(t, int64(32), results.TotalEngagement)
	assert.True(t, math.Abs(results.MarginPercent-25) < 1e-6)

	stored, err := st.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, db.ExperimentRunning, stored.Status, "computing results must not change state")

	completed, err := svc.CompleteExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, db.ExperimentCompleted, completed.Status)

	stored, err = st.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.WinnerVariantLabel)
	assert.Equal(t, "A", *stored.WinnerVariantLabel)

	require.ErrorIs(t, svc.CancelExperiment(ctx, exp.ID), ErrExperimentClosed)
}

func TestCreateExperimentValidation(t *testing.T) {
	st := setupServiceTestStore(t)
	ctx := context.Background()
	seedPost(t, st, db.Post{ID: "p1"})
	seedPost(t, st, db.Post{ID: "p2"})
	seedPost(t, st, db.Post{ID: "foreign", WorkspaceID: "ws-other"})

	svc := NewExperimentService(st, nil, nil)
	cases := []struct {
		name  string
		input CreateExperimentInput
		want  error
	}{
		{name: "workspace", input: CreateExperimentInput{Name: "x", PostIDs: []string{"p1", "p2"}}, want: ErrWorkspaceRequired},
		{name: "name", input: CreateExperimentInput{WorkspaceID: testWorkspace, PostIDs: []string{"p1", "p2"}}, want: ErrExperimentNameRequired},
		{name: "too few", input: CreateExperimentInput{WorkspaceID: testWorkspace, Name: "x", PostIDs: []string{"p1", "p1"}}, want: ErrExperimentTooFewPosts},
		{name: "missing post", input: CreateExperimentInput{WorkspaceID: testWorkspace, Name: "x", PostIDs: []string{"p1", "nope"}}, want: ErrPostNotFound},
		{name: "other workspace", input: CreateExperimentInput{WorkspaceID: testWorkspace, Name: "x", PostIDs: []string{"p1", "foreign"}}, want: ErrPostNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.CreateExperiment(ctx, tc.input)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	var linked int64
	st.DB().Model(&db.Post{}).Where("experiment_id IS NOT NULL").Count(&linked)
	assert.Zero(t, linked, "failed creations must not link posts")
}

func TestCancelExperimentReleasesPosts(t *testing.T) {
	st := setupServiceTestStore(t)
	ctx := context.Background()
	seedPost(t, st, db.Post{ID: "p1"})
	seedPost(t, st, db.Post{ID: "p2"})

	svc := NewExperimentService(st, nil, nil)
	exp, _, err := svc.CreateExperiment(ctx, CreateExperimentInput{WorkspaceID: testWorkspace, Name: "cancel me", PostIDs: []string{"p1", "p2"}})
	require.NoError(t, err)

	require.NoError(t, svc.CancelExperiment(ctx, exp.ID))
	post, err := st.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, post.ExperimentID)

	_, err = svc.CompleteExperiment(ctx, exp.ID)
	require.ErrorIs(t, err, ErrExperimentClosed)

	_, err = svc.ComputeExperimentResults(ctx, "missing")
	require.ErrorIs(t, err, ErrExperimentNotFound)
	require.ErrorIs(t, svc.CancelExperiment(ctx, "missing"), ErrExperimentNotFound)
}

func TestExplainExperimentPersistsSummary(t *testing.T) {
	st := setupServiceTestStore(t)
	ctx := context.Background()
	seedPost(t, st, db.Post{ID: "p1"})
	seedPost(t, st, db.Post{ID: "p2"})

	gen := &stubGenerator{text: "Variant A is ahead. <script>alert(1)</script>"}
	cache := NewDBResponseCache(st, nil)
	explanation := NewExplanationService(gen, cache, nil)
	svc := NewExperimentService(st, explanation, nil)

	exp, _, err := svc.CreateExperiment(ctx, CreateExperimentInput{WorkspaceID: testWorkspace, Name: "explain", PostIDs: []string{"p1", "p2"}})
	require.NoError(t, err)

	summary, err := svc.ExplainExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Variant A is ahead.", strings.TrimSpace(summary))

	again, err := svc.ExplainExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, summary, again)
	assert.Equal(t, 1, gen.calls, "second explanation should come from cache")

	stored, err := st.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Summary)
	assert.Equal(t, summary, *stored.Summary)

	failing := NewExperimentService(st, NewExplanationService(&stubGenerator{err: errors.New("boom")}, nil, nil), nil)
	summary, err = failing.ExplainExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, ExplanationUnavailable, summary)
}
