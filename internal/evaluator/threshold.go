package evaluator

import (
	"math"

	"github.com/freshness-monitor/backend/internal/models"
)

// Policy tunes the adaptive threshold estimator.
type Policy struct {
	// HistoryCapacity is the number of recent values kept per channel.
	HistoryCapacity int
	// MinSamples is the history length required before thresholds adapt.
	MinSamples int
	// SigmaMultiplier is k in mean ± k·stddev.
	SigmaMultiplier float64
	// LowerClampFactor bounds the adaptive minimum at factor × default min.
	LowerClampFactor float64
	// UpperClampFactor bounds the adaptive maximum at factor × default max.
	UpperClampFactor float64
}

// DefaultPolicy returns the reference estimator settings.
func DefaultPolicy() Policy {
	return Policy{
		HistoryCapacity:  200,
		MinSamples:       50,
		SigmaMultiplier:  2,
		LowerClampFactor: 0.5,
		UpperClampFactor: 1.5,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.HistoryCapacity <= 0 {
		p.HistoryCapacity = d.HistoryCapacity
	}
	if p.MinSamples <= 0 {
		p.MinSamples = d.MinSamples
	}
	if p.SigmaMultiplier <= 0 {
		p.SigmaMultiplier = d.SigmaMultiplier
	}
	if p.LowerClampFactor <= 0 {
		p.LowerClampFactor = d.LowerClampFactor
	}
	if p.UpperClampFactor <= 0 {
		p.UpperClampFactor = d.UpperClampFactor
	}
	return p
}

// estimate derives the threshold for one channel from its history. It
// returns the profile's default range whenever the history is too short or
// its statistics are degenerate: non-finite, zero variance, or a range that
// would invert after clamping.
func (p Policy) estimate(h *History, profile models.ChannelProfile) models.Threshold {
	fallback := profile.DefaultThreshold()
	if h.Len() < p.MinSamples {
		return fallback
	}

	mean, stddev, ok := h.Stats()
	if !ok || !finite(mean) || !finite(stddev) || stddev == 0 {
		return fallback
	}

	lo := mean - p.SigmaMultiplier*stddev
	hi := mean + p.SigmaMultiplier*stddev
	lo = math.Max(lo, profile.Min*p.LowerClampFactor)
	hi = math.Min(hi, profile.Max*p.UpperClampFactor)

	lo, hi = round2(lo), round2(hi)
	if lo > hi {
		return fallback
	}
	return models.Threshold{Min: lo, Max: hi, Adaptive: true}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
