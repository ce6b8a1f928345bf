package suggest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ADITIII0201/kith/internal/social"
)

func rankFixture() (social.User, []social.User, []social.ConnectionEdge) {
	viewer := social.User{
		ID:        "u-amy",
		Name:      "Amy",
		Interests: []string{"music", "travel", "tech", "cooking"},
		Groups:    []string{"developers", "music-lovers"},
	}
	users := []social.User{
		viewer,
		{
			ID:           "u-jane",
			Name:         "Jane Smith",
			Interests:    []string{"music", "art", "travel"},
			Groups:       []string{"developers", "artists"},
			LastActiveAt: rankNow.Add(-24 * time.Hour),
		},
		{
			ID:           "u-kay",
			Name:         "Kay",
			Interests:    []string{"cooking"},
			LastActiveAt: rankNow.Add(-15 * 24 * time.Hour),
		},
		{
			ID:           "u-zed",
			Name:         "Zed",
			Interests:    []string{"music"},
			LastActiveAt: rankNow,
		},
		{
			ID:           "u-old",
			Name:         "Old Timer",
			Interests:    []string{"fishing"},
			LastActiveAt: rankNow.Add(-60 * 24 * time.Hour),
		},
		{
			ID:           "u-dis",
			Name:         "Dismissed",
			Interests:    []string{"music"},
			LastActiveAt: rankNow,
		},
	}
	edges := []social.ConnectionEdge{
		{TargetUserID: "u-zed", Strength: 0.8, MutualFollowerIDs: []string{"u-jane", "u-kay"}},
	}
	return viewer, users, edges
}

func fixedRanker(opts ...Option) *Ranker {
	opts = append([]Option{WithClock(clockwork.NewFakeClockAt(rankNow))}, opts...)
	return NewRanker(opts...)
}

func TestRankExclusions(t *testing.T) {
	viewer, users, edges := rankFixture()
	dismissed := map[string]bool{"u-dis": true}

	got := fixedRanker().Rank(users, viewer, edges, func(id string) bool { return dismissed[id] }, 0)

	ids := make([]string, 0, len(got))
	for _, c := range got {
		ids = append(ids, c.User.ID)
	}
	assert.NotContains(t, ids, "u-amy", "the viewer must never be suggested")
	assert.NotContains(t, ids, "u-zed", "already connected users are excluded")
	assert.NotContains(t, ids, "u-dis", "dismissed users are excluded")
	assert.NotContains(t, ids, "u-old", "zero-score users are excluded")
	assert.Equal(t, []string{"u-jane", "u-kay"}, ids)
}

func TestRankOrderingAndScores(t *testing.T) {
	viewer, users, edges := rankFixture()

	got := fixedRanker().Rank(users, viewer, edges, nil, 0)

	require.Len(t, got, 3)
	assert.Equal(t, "u-jane", got[0].User.ID)
	assert.InDelta(t, 0.475, got[0].Score, 1e-9)
	assert.Equal(t, "u-dis", got[1].User.ID, "without a dismissal predicate nothing is filtered")
	assert.InDelta(t, 0.45, got[1].Score, 1e-9)
	assert.Equal(t, "u-kay", got[2].User.ID)
	assert.InDelta(t, 0.39, got[2].Score, 1e-9)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score, "scores must be descending")
	}
}

func TestRankTieBreaksByID(t *testing.T) {
	viewer := social.User{ID: "v", Interests: []string{"go"}}
	users := []social.User{
		{ID: "b-user", Interests: []string{"go"}, LastActiveAt: rankNow},
		{ID: "a-user", Interests: []string{"go"}, LastActiveAt: rankNow},
		{ID: "c-user", Interests: []string{"go"}, LastActiveAt: rankNow},
	}

	got := fixedRanker().Rank(users, viewer, nil, nil, 0)

	require.Len(t, got, 3)
	assert.Equal(t, "a-user", got[0].User.ID)
	assert.Equal(t, "b-user", got[1].User.ID)
	assert.Equal(t, "c-user", got[2].User.ID)
}

func TestRankLimitClamping(t *testing.T) {
	viewer := social.User{ID: "v", Interests: []string{"go"}}
	users := make([]social.User, 0, 60)
	for i := 0; i < 60; i++ {
		users = append(users, social.User{
			ID:           fmt.Sprintf("c-%02d", i),
			Interests:    []string{"go"},
			LastActiveAt: rankNow,
		})
	}

	r := fixedRanker()
	assert.Len(t, r.Rank(users, viewer, nil, nil, 100), 50, "limit clamps to 50")
	assert.Len(t, r.Rank(users, viewer, nil, nil, -3), 1, "negative limit clamps to 1")
	assert.Len(t, r.Rank(users, viewer, nil, nil, 0), DefaultLimit, "zero limit means the default")
	assert.Len(t, r.Rank(users, viewer, nil, nil, 7), 7)

	capped := fixedRanker(WithLimit(200))
	assert.Len(t, capped.Rank(users, viewer, nil, nil, 0), 50, "configured limit clamps too")
}

func TestRankGolden(t *testing.T) {
	viewer, users, edges := rankFixture()
	dismissed := map[string]bool{"u-dis": true}

	got := fixedRanker().Rank(users, viewer, edges, func(id string) bool { return dismissed[id] }, 0)

	var sb strings.Builder
	for i, c := range got {
		fmt.Fprintf(&sb, "%d %s score=%.4f mutual=%.4f recency=%.4f interests=%.4f groups=%.4f\n",
			i+1, c.User.ID, c.Score, c.Parts.Mutual, c.Parts.Recency, c.Parts.Interests, c.Parts.Groups)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "rank_basic", []byte(sb.String()))
}
