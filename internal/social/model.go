// Package social defines the social-graph input model: users, the
// connection edges that annotate an existing relationship, and the weight
// configuration for suggestion ranking.
//
// The package only ever hands out validated, normalized copies. Records
// that fail validation are dropped by the caller (directory load, ranker
// input) rather than propagated as errors; malformed input must never
// crash a ranking pass.
package social

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

// User is one member of the social graph as seen by the suggestion engine.
// Instances are created and updated externally; the engine reads them.
type User struct {
	ID           string    `json:"id" validate:"required"`
	Name         string    `json:"name" validate:"required"`
	AvatarRef    string    `json:"avatar_ref,omitempty"`
	Interests    []string  `json:"interests"`
	Groups       []string  `json:"groups"`
	LastActiveAt time.Time `json:"last_active_at"`
	IsOnline     bool      `json:"is_online"`
}

// ConnectionEdge annotates an existing relationship between the current
// user and TargetUserID. MutualFollowerIDs lists followers common to both
// endpoints. Multiple edges to the same target are legal; scoring
// aggregates them instead of deduplicating.
type ConnectionEdge struct {
	TargetUserID      string   `json:"target_user_id" validate:"required"`
	Strength          float64  `json:"strength"`
	MutualFollowerIDs []string `json:"mutual_follower_ids"`
}

// RankingWeights configures the four scoring axes. Weights are
// non-negative but do not have to sum to 1; the scoring function clamps
// its output regardless of weight magnitude.
type RankingWeights struct {
	MutualFollowers float64 `json:"mutual_followers" yaml:"mutual_followers"`
	RecentActivity  float64 `json:"recent_activity" yaml:"recent_activity"`
	SharedInterests float64 `json:"shared_interests" yaml:"shared_interests"`
	CommonGroups    float64 `json:"common_groups" yaml:"common_groups"`
}

// DefaultWeights returns the stock weight configuration.
func DefaultWeights() RankingWeights {
	return RankingWeights{
		MutualFollowers: 0.4,
		RecentActivity:  0.2,
		SharedInterests: 0.25,
		CommonGroups:    0.15,
	}
}

// Normalized returns a copy with every negative weight replaced by zero.
func (w RankingWeights) Normalized() RankingWeights {
	return RankingWeights{
		MutualFollowers: max(w.MutualFollowers, 0),
		RecentActivity:  max(w.RecentActivity, 0),
		SharedInterests: max(w.SharedInterests, 0),
		CommonGroups:    max(w.CommonGroups, 0),
	}
}

// modelValidate is the shared validator instance for this package.
var modelValidate = validator.New()

// Validate reports whether the user satisfies the model invariants
// (non-empty ID and name). Optional fields are not validated; they
// normalize instead.
func (u User) Validate() error {
	return modelValidate.Struct(u)
}

// Validate reports whether the edge satisfies the model invariants
// (non-empty target).
func (e ConnectionEdge) Validate() error {
	return modelValidate.Struct(e)
}

// Normalized returns a copy with optional fields replaced by their
// defaults: nil collections become empty slices, a zero LastActiveAt
// becomes now, and all strings are NFC-normalized so that interest and
// group comparisons are stable across composed/decomposed Unicode input.
func (u User) Normalized(now time.Time) User {
	out := u
	out.ID = norm.NFC.String(u.ID)
	out.Name = norm.NFC.String(u.Name)
	out.Interests = normalizeAll(u.Interests)
	out.Groups = normalizeAll(u.Groups)
	if out.LastActiveAt.IsZero() {
		out.LastActiveAt = now
	}
	return out
}

// Normalized returns a copy with Strength clamped to [0,1] and the mutual
// follower list defaulted to empty and NFC-normalized.
func (e ConnectionEdge) Normalized() ConnectionEdge {
	out := e
	out.TargetUserID = norm.NFC.String(e.TargetUserID)
	switch {
	case e.Strength < 0:
		out.Strength = 0
	case e.Strength > 1:
		out.Strength = 1
	}
	out.MutualFollowerIDs = normalizeAll(e.MutualFollowerIDs)
	return out
}

func normalizeAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = norm.NFC.String(s)
	}
	return out
}
