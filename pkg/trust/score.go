// Package trust computes the bounded, time-decayed reputation score
// attached to every agent: a weighted blend of a dispute-penalized
// success ratio, a raw success ratio and an activity term, discounted
// the longer an agent has gone quiet.
package trust

import (
	"math"
	"time"

	"github.com/aeep-network/aeep/pkg/config"
)

// Counters is the tally of an agent's completed interaction history that
// the score is computed from.
type Counters struct {
	Successful int64
	Failed     int64
	Disputes   int64
}

// Scorer computes trust scores from a policy's weighting parameters.
type Scorer struct {
	policy config.TrustPolicy
}

// NewScorer builds a Scorer bound to a trust policy.
func NewScorer(policy config.TrustPolicy) *Scorer {
	return &Scorer{policy: policy}
}

// Score computes the bounded score in [0, 1] for the given counters,
// rounded to two decimal places. An agent with no history scores 0.50.
func (s *Scorer) Score(c Counters) float64 {
	total := c.Successful + c.Failed + c.Disputes
	if total == 0 {
		return 0.50
	}

	totalF := float64(total)
	raw := float64(c.Successful) / totalF

	adjustedDenom := float64(c.Successful) + float64(c.Failed) + s.policy.DisputeWeight*float64(c.Disputes)
	var adjusted float64
	if adjustedDenom > 0 {
		adjusted = float64(c.Successful) / adjustedDenom
	}

	activity := math.Min(1, math.Log10(totalF+1)/3)

	score := s.policy.WeightAdjusted*adjusted + s.policy.WeightRaw*raw + s.policy.WeightActivity*activity
	return round2(clamp01(score))
}

// Decay applies the time-decay factor for an agent that has been inactive
// since lastActivity, scaling the score down toward a floor of score *
// DecayAsymptote the longer it has been quiet — an infinitely inactive
// agent's score approaches half its last active value when DecayAsymptote
// is 0.5. Scores within the grace period are unaffected. The decay factor
// is monotone non-increasing in days-inactive beyond the grace period, so
// the result is too, for any starting score.
func (s *Scorer) Decay(score float64, lastActivity, now time.Time) float64 {
	graceDays := float64(s.policy.DecayGraceDays)
	days := now.Sub(lastActivity).Hours() / 24
	if days <= graceDays {
		return score
	}

	halfLifeDays := s.policy.DecayHalfLife.Duration().Hours() / 24
	if halfLifeDays <= 0 {
		return score
	}

	asymptote := s.policy.DecayAsymptote
	factor := asymptote + (1-asymptote)*math.Pow(0.5, (days-graceDays)/halfLifeDays)
	decayed := score * factor
	return round2(clamp01(decayed))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
