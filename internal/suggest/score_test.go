package suggest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ADITIII0201/kith/internal/social"
)

var rankNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestScoreWorkedExample(t *testing.T) {
	viewer := social.User{
		ID:        "user123",
		Name:      "Current User",
		Interests: []string{"music", "travel", "tech", "cooking"},
		Groups:    []string{"developers", "music-lovers"},
	}
	jane := social.User{
		ID:           "user456",
		Name:         "Jane Smith",
		Interests:    []string{"music", "art", "travel"},
		Groups:       []string{"developers", "artists"},
		LastActiveAt: rankNow.Add(-24 * time.Hour),
	}
	edges := []social.ConnectionEdge{
		{TargetUserID: "user999", MutualFollowerIDs: []string{"user456", "user789"}},
	}

	score, parts := Score(jane, viewer, edges, social.DefaultWeights(), rankNow)

	assert.InDelta(t, 0.1, parts.Mutual, 1e-9)
	assert.InDelta(t, 1-1.0/30, parts.Recency, 1e-9)
	assert.InDelta(t, 2.0/3, parts.Interests, 1e-9)
	assert.InDelta(t, 0.5, parts.Groups, 1e-9)
	assert.InDelta(t, 0.475, score, 1e-9)
}

func TestScoreMutualCount(t *testing.T) {
	viewer := social.User{ID: "v"}
	tests := []struct {
		name  string
		edges []social.ConnectionEdge
		want  float64
	}{
		{"no edges", nil, 0},
		{"edge to candidate sums its list", []social.ConnectionEdge{
			{TargetUserID: "cand", MutualFollowerIDs: []string{"a", "b", "c"}},
		}, 0.3},
		{"appearance in another edge counts once", []social.ConnectionEdge{
			{TargetUserID: "other", MutualFollowerIDs: []string{"cand", "x"}},
		}, 0.1},
		{"both sources accumulate", []social.ConnectionEdge{
			{TargetUserID: "cand", MutualFollowerIDs: []string{"a", "b"}},
			{TargetUserID: "other", MutualFollowerIDs: []string{"cand"}},
		}, 0.3},
		{"clamped at ten mutuals", []social.ConnectionEdge{
			{TargetUserID: "cand", MutualFollowerIDs: []string{
				"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l",
			}},
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cand := social.User{ID: "cand", LastActiveAt: rankNow}
			_, parts := Score(cand, viewer, tt.edges, social.DefaultWeights(), rankNow)
			assert.InDelta(t, tt.want, parts.Mutual, 1e-9)
		})
	}
}

func TestScoreRecency(t *testing.T) {
	tests := []struct {
		name       string
		lastActive time.Time
		want       float64
	}{
		{"active now", rankNow, 1},
		{"one day ago", rankNow.Add(-24 * time.Hour), 1 - 1.0/30},
		{"fifteen days ago", rankNow.Add(-15 * 24 * time.Hour), 0.5},
		{"thirty days ago", rankNow.Add(-30 * 24 * time.Hour), 0},
		{"ninety days ago", rankNow.Add(-90 * 24 * time.Hour), 0},
		{"future timestamp clamps to one", rankNow.Add(48 * time.Hour), 1},
		{"zero time scores nothing", time.Time{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cand := social.User{ID: "c", LastActiveAt: tt.lastActive}
			_, parts := Score(cand, social.User{ID: "v"}, nil, social.DefaultWeights(), rankNow)
			assert.InDelta(t, tt.want, parts.Recency, 1e-9)
		})
	}
}

func TestScoreOverlapRatios(t *testing.T) {
	viewer := social.User{
		ID:        "v",
		Interests: []string{"go", "jazz"},
		Groups:    []string{"g1"},
	}
	tests := []struct {
		name          string
		cand          social.User
		wantInterests float64
		wantGroups    float64
	}{
		{"no interests is zero, not NaN", social.User{ID: "c"}, 0, 0},
		{"full overlap", social.User{ID: "c", Interests: []string{"go", "jazz"}, Groups: []string{"g1"}}, 1, 1},
		{"partial overlap over candidate size", social.User{ID: "c", Interests: []string{"go", "chess", "film"}}, 1.0 / 3, 0},
		{"disjoint", social.User{ID: "c", Interests: []string{"chess"}, Groups: []string{"g2"}}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, parts := Score(tt.cand, viewer, nil, social.DefaultWeights(), rankNow)
			assert.InDelta(t, tt.wantInterests, parts.Interests, 1e-9)
			assert.InDelta(t, tt.wantGroups, parts.Groups, 1e-9)
		})
	}
}

func TestScoreAlwaysBounded(t *testing.T) {
	weightGrid := []social.RankingWeights{
		{},
		social.DefaultWeights(),
		{MutualFollowers: 1, RecentActivity: 1, SharedInterests: 1, CommonGroups: 1},
		{MutualFollowers: 5, RecentActivity: 5, SharedInterests: 5, CommonGroups: 5},
		{MutualFollowers: -2, RecentActivity: 0.5, SharedInterests: -0.1, CommonGroups: 3},
	}
	viewer := social.User{
		ID:        "v",
		Interests: []string{"go", "jazz", "film"},
		Groups:    []string{"g1", "g2"},
	}
	candidates := []social.User{
		{ID: "empty"},
		{
			ID:           "max-signal",
			Interests:    []string{"go", "jazz", "film"},
			Groups:       []string{"g1", "g2"},
			LastActiveAt: rankNow.Add(time.Hour),
		},
		{ID: "stale", Interests: []string{"go"}, LastActiveAt: rankNow.Add(-400 * 24 * time.Hour)},
	}
	edges := []social.ConnectionEdge{
		{TargetUserID: "max-signal", MutualFollowerIDs: []string{
			"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k",
		}},
	}

	for _, w := range weightGrid {
		for _, cand := range candidates {
			s, parts := Score(cand, viewer, edges, w, rankNow)
			require.GreaterOrEqual(t, s, 0.0, "weights %+v candidate %s", w, cand.ID)
			require.LessOrEqual(t, s, 1.0, "weights %+v candidate %s", w, cand.ID)
			for _, p := range []float64{parts.Mutual, parts.Recency, parts.Interests, parts.Groups} {
				require.GreaterOrEqual(t, p, 0.0)
				require.LessOrEqual(t, p, 1.0)
			}
		}
	}
}
