package trust

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aeep-network/aeep/pkg/config"
)

func defaultPolicy() config.TrustPolicy {
	return config.DefaultPolicyConfig().Trust
}

func TestScore_NoHistoryDefaultsToHalf(t *testing.T) {
	s := NewScorer(defaultPolicy())
	assert.Equal(t, 0.50, s.Score(Counters{}))
}

func TestScore_AllSuccessfulIsHigh(t *testing.T) {
	s := NewScorer(defaultPolicy())
	got := s.Score(Counters{Successful: 50})
	assert.GreaterOrEqual(t, got, 0.9, "expected a high score for a clean history")
}

func TestScore_DisputesPenalizeMoreThanFailures(t *testing.T) {
	s := NewScorer(defaultPolicy())
	withFailure := s.Score(Counters{Successful: 10, Failed: 1})
	withDispute := s.Score(Counters{Successful: 10, Disputes: 1})
	assert.Less(t, withDispute, withFailure, "a dispute should penalize more than an equivalent failure")
}

func TestScore_StaysBounded(t *testing.T) {
	s := NewScorer(defaultPolicy())
	got := s.Score(Counters{Successful: 1_000_000})
	assert.LessOrEqual(t, got, 1.0)
	assert.GreaterOrEqual(t, got, 0.0)
}

func TestDecay_NoEffectWithinGracePeriod(t *testing.T) {
	s := NewScorer(defaultPolicy())
	now := time.Now()
	last := now.Add(-3 * 24 * time.Hour)
	score := 0.9
	assert.Equal(t, score, s.Decay(score, last, now))
}

func TestDecay_PullsTowardAsymptoteOverTime(t *testing.T) {
	s := NewScorer(defaultPolicy())
	now := time.Now()
	last := now.Add(-400 * 24 * time.Hour)
	got := s.Decay(0.9, last, now)
	assert.Less(t, got, 0.9, "decay should pull the score down after a year of inactivity")
	// A long-inactive agent's score approaches half its last active value
	// (DecayAsymptote == 0.5 by default), not an absolute floor of 0.5.
	assert.GreaterOrEqual(t, got, 0.45, "decay should approach half of 0.9, not go below it")
}

func TestDecay_IsMonotoneForScoreBelowAsymptote(t *testing.T) {
	s := NewScorer(defaultPolicy())
	now := time.Now()
	score := 0.30

	prev := score
	for _, days := range []int{8, 30, 90, 180, 365, 1000} {
		last := now.Add(-time.Duration(days) * 24 * time.Hour)
		got := s.Decay(score, last, now)
		assert.LessOrEqualf(t, got, prev, "decay is not monotone non-increasing at day %d", days)
		prev = got
	}
}
