// Package suggest scores and ranks connection candidates. Scoring is a
// pure function over a snapshot of directory state; the only ambient
// input is "now", which callers inject for reproducible runs.
package suggest

import (
	"math"
	"time"

	"github.com/ADITIII0201/kith/internal/social"
)

const (
	// mutualNormalizer caps the mutual-follower axis: ten or more mutuals
	// count as a full signal.
	mutualNormalizer = 10

	// recencyWindow is the linear decay window for the activity axis.
	// Users inactive for the whole window score zero on it.
	recencyWindow = 30 * 24 * time.Hour
)

// ScoreParts breaks a composite score into its four axes, each already
// clamped to [0,1]. Kept alongside the final score so a presentation
// layer can explain why a candidate ranked where it did.
type ScoreParts struct {
	Mutual    float64 `json:"mutual"`
	Recency   float64 `json:"recency"`
	Interests float64 `json:"interests"`
	Groups    float64 `json:"groups"`
}

// Score rates how strong a suggestion the candidate is for the viewer,
// in [0,1]. Negative weights count as zero; whatever the weight
// magnitudes, the result is clamped, never NaN, and never an error.
func Score(candidate, viewer social.User, edges []social.ConnectionEdge, weights social.RankingWeights, now time.Time) (float64, ScoreParts) {
	parts := ScoreParts{
		Mutual:    clamp01(float64(mutualCount(candidate.ID, edges)) / mutualNormalizer),
		Recency:   recencyScore(candidate.LastActiveAt, now),
		Interests: overlapRatio(candidate.Interests, viewer.Interests),
		Groups:    overlapRatio(candidate.Groups, viewer.Groups),
	}
	w := weights.Normalized()
	s := w.MutualFollowers*parts.Mutual +
		w.RecentActivity*parts.Recency +
		w.SharedInterests*parts.Interests +
		w.CommonGroups*parts.Groups
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0, parts
	}
	return clamp01(s), parts
}

// mutualCount counts the mutual-follower signal for a candidate across
// the viewer's connection edges. An edge pointing at the candidate
// contributes its whole mutual list; any other edge contributes one per
// appearance of the candidate in its mutual list.
func mutualCount(candidateID string, edges []social.ConnectionEdge) int {
	n := 0
	for _, e := range edges {
		if e.TargetUserID == candidateID {
			n += len(e.MutualFollowerIDs)
			continue
		}
		for _, id := range e.MutualFollowerIDs {
			if id == candidateID {
				n++
			}
		}
	}
	return n
}

func recencyScore(lastActive, now time.Time) float64 {
	elapsed := now.Sub(lastActive)
	return clamp01(1 - float64(elapsed)/float64(recencyWindow))
}

// overlapRatio is the share of the candidate's entries the viewer also
// has. A candidate with no entries scores zero: absence of signal is not
// a perfect match.
func overlapRatio(candidate, viewer []string) float64 {
	if len(candidate) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(viewer))
	for _, v := range viewer {
		set[v] = struct{}{}
	}
	shared := 0
	for _, c := range candidate {
		if _, ok := set[c]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(candidate))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
