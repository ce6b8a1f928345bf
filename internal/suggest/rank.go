package suggest

import (
	"slices"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/ADITIII0201/kith/internal/social"
)

const (
	// DefaultLimit is the suggestion count used when the caller does not
	// ask for a specific one.
	DefaultLimit = 10

	limitMin = 1
	limitMax = 50
)

// ScoredCandidate is one ranked suggestion.
type ScoredCandidate struct {
	User  social.User `json:"user"`
	Score float64     `json:"score"`
	Parts ScoreParts  `json:"parts"`
}

// Ranker turns a directory snapshot into an ordered suggestion list.
// It is stateless apart from its configuration and safe to share.
type Ranker struct {
	weights social.RankingWeights
	limit   int
	clock   clockwork.Clock
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithWeights overrides the default scoring weights.
func WithWeights(w social.RankingWeights) Option {
	return func(r *Ranker) { r.weights = w }
}

// WithLimit sets the default suggestion count, clamped to [1,50].
func WithLimit(n int) Option {
	return func(r *Ranker) { r.limit = clampLimit(n) }
}

// WithClock injects the time source used for recency scoring.
func WithClock(c clockwork.Clock) Option {
	return func(r *Ranker) { r.clock = c }
}

// NewRanker returns a Ranker with default weights, the default limit,
// and the wall clock.
func NewRanker(opts ...Option) *Ranker {
	r := &Ranker{
		weights: social.DefaultWeights(),
		limit:   DefaultLimit,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Weights returns the ranker's scoring weights.
func (r *Ranker) Weights() social.RankingWeights { return r.weights }

// Rank scores every eligible candidate and returns the top suggestions
// in descending score order, ties broken by user ID ascending so runs
// are reproducible. Excluded outright: the viewer, anyone the viewer
// already has a connection edge to, and anyone the dismissed predicate
// reports. Candidates scoring zero are dropped rather than padded in. A
// limit of zero means the ranker's configured default; any other value
// is clamped to [1,50].
func (r *Ranker) Rank(users []social.User, viewer social.User, edges []social.ConnectionEdge, dismissed func(string) bool, limit int) []ScoredCandidate {
	if limit == 0 {
		limit = r.limit
	}
	limit = clampLimit(limit)

	connected := make(map[string]struct{}, len(edges))
	for _, e := range edges {
		connected[e.TargetUserID] = struct{}{}
	}

	now := r.clock.Now()
	scored := make([]ScoredCandidate, 0, len(users))
	for _, u := range users {
		if u.ID == "" || u.ID == viewer.ID {
			continue
		}
		if _, ok := connected[u.ID]; ok {
			continue
		}
		if dismissed != nil && dismissed(u.ID) {
			continue
		}
		s, parts := Score(u, viewer, edges, r.weights, now)
		if s <= 0 {
			continue
		}
		scored = append(scored, ScoredCandidate{User: u, Score: s, Parts: parts})
	}

	slices.SortFunc(scored, func(a, b ScoredCandidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return strings.Compare(a.User.ID, b.User.ID)
		}
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func clampLimit(n int) int {
	switch {
	case n < limitMin:
		return limitMin
	case n > limitMax:
		return limitMax
	default:
		return n
	}
}
