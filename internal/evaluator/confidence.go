package evaluator

import (
	"math"

	"github.com/freshness-monitor/backend/internal/models"
)

// inRangePenalty is the largest confidence loss for a value that is still
// inside its threshold (reached at either edge).
const inRangePenalty = 0.3

// neutralConfidence is reported when there is nothing to average.
const neutralConfidence = 0.5

// channelConfidence scores how centrally v sits within t, in [0, 1].
func channelConfidence(v float64, t models.Threshold) float64 {
	width := t.Width()
	if width <= 0 {
		if v == t.Min {
			return 1
		}
		return 0
	}

	var c float64
	switch {
	case v < t.Min:
		c = 1 - (t.Min-v)/(2*width)
	case v > t.Max:
		c = 1 - (v-t.Max)/(2*width)
	default:
		center := (t.Min + t.Max) / 2
		c = 1 - inRangePenalty*(math.Abs(v-center)/(width/2))
	}
	return math.Max(0, math.Min(1, c))
}

// aggregateConfidence averages the per-channel scores, rounded to 2 decimals.
func aggregateConfidence(verdicts []models.ChannelVerdict) float64 {
	if len(verdicts) == 0 {
		return neutralConfidence
	}
	var sum float64
	for _, v := range verdicts {
		sum += v.Confidence
	}
	return round2(sum / float64(len(verdicts)))
}
