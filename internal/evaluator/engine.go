// Package evaluator implements the adaptive sensor-evaluation engine: it
// validates raw channel values, derives per-channel acceptable ranges from a
// rolling statistical baseline (falling back to fixed defaults), classifies
// each reading and scores its confidence.
//
// An Engine is not safe for concurrent use. Callers that evaluate from
// several goroutines must serialize access themselves.
package evaluator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/freshness-monitor/backend/internal/models"
	"github.com/google/uuid"
)

// ErrMissingChannel is returned when a reading lacks one of the channels.
var ErrMissingChannel = errors.New("reading is missing a channel")

// AcceptableExplanation is the explanation of a reading with no warnings.
const AcceptableExplanation = "All sensors are within normal range. Product is fit for consumption."

const unacceptablePrefix = "Product is not fit for consumption: "

// Engine holds the rolling histories and reading counter of one monitoring
// session.
type Engine struct {
	profiles  models.ChannelProfiles
	policy    Policy
	histories [models.NumChannels]*History
	total     int
	now       func() time.Time
	newID     func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used to stamp results.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides how result IDs are generated.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// New creates an engine with empty histories.
func New(profiles models.ChannelProfiles, policy Policy, opts ...Option) *Engine {
	e := &Engine{
		profiles: profiles,
		policy:   policy.withDefaults(),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	for i := range e.histories {
		e.histories[i] = NewHistory(e.policy.HistoryCapacity)
	}
	return e
}

// NewDefault creates an engine with the reference profiles and policy.
func NewDefault(opts ...Option) *Engine {
	return New(models.DefaultProfiles(), DefaultPolicy(), opts...)
}

// Profiles returns the static channel configuration.
func (e *Engine) Profiles() models.ChannelProfiles {
	return e.profiles
}

// Policy returns the estimator settings in effect.
func (e *Engine) Policy() Policy {
	return e.policy
}

// ThresholdFor returns the range currently applied to channel c. It does not
// modify any state.
func (e *Engine) ThresholdFor(c models.Channel) models.Threshold {
	return e.policy.estimate(e.histories[c], e.profiles[c])
}

// Thresholds returns the current range of every channel.
func (e *Engine) Thresholds() [models.NumChannels]models.Threshold {
	var out [models.NumChannels]models.Threshold
	for _, c := range models.Channels {
		out[c] = e.ThresholdFor(c)
	}
	return out
}

// Evaluate classifies one reading, then records its validated values in the
// channel histories. Thresholds are computed before the reading's own values
// are appended. A reading without all channels is rejected with
// ErrMissingChannel and leaves the engine unchanged.
func (e *Engine) Evaluate(reading models.Reading) (*models.Result, error) {
	values, err := e.validate(reading)
	if err != nil {
		return nil, err
	}

	verdicts := make([]models.ChannelVerdict, 0, models.NumChannels)
	var reasons []string
	for _, c := range models.Channels {
		v := e.classify(c, values[c], e.ThresholdFor(c))
		if v.Status == models.ChannelStatusWarning {
			reasons = append(reasons, v.Reason)
		}
		verdicts = append(verdicts, v)
	}

	status := models.StatusAcceptable
	explanation := AcceptableExplanation
	if len(reasons) > 0 {
		status = models.StatusUnacceptable
		explanation = unacceptablePrefix + strings.Join(reasons, "; ")
	}

	e.record(values)

	return &models.Result{
		ID:             e.newID(),
		Timestamp:      e.now(),
		Values:         values,
		Verdicts:       verdicts,
		Status:         status,
		Explanation:    explanation,
		Confidence:     aggregateConfidence(verdicts),
		ReadingCount:   e.total,
		AdaptiveActive: e.adaptiveActive(),
	}, nil
}

// Observe records a reading in the histories without classifying it. It is
// used to feed labelled or previously stored samples into the baseline.
func (e *Engine) Observe(reading models.Reading) error {
	values, err := e.validate(reading)
	if err != nil {
		return err
	}
	e.record(values)
	return nil
}

// Reset discards all history and zeroes the reading counter.
func (e *Engine) Reset() {
	for _, h := range e.histories {
		h.Reset()
	}
	e.total = 0
}

// Status reports the counter and buffer fill levels.
func (e *Engine) Status() models.EngineStatus {
	sizes := make(map[models.Channel]int, models.NumChannels)
	for _, c := range models.Channels {
		sizes[c] = e.histories[c].Len()
	}
	return models.EngineStatus{
		TotalReadings:   e.total,
		AdaptiveEnabled: true,
		AdaptiveActive:  e.adaptiveActive(),
		BufferSizes:     sizes,
		BufferCapacity:  e.policy.HistoryCapacity,
	}
}

func (e *Engine) adaptiveActive() bool {
	return e.total >= e.policy.MinSamples
}

func (e *Engine) validate(reading models.Reading) (models.ChannelValues, error) {
	var values models.ChannelValues
	for _, c := range models.Channels {
		raw, ok := reading[c]
		if !ok {
			return values, fmt.Errorf("%w: %s", ErrMissingChannel, c)
		}
		values[c] = Validate(raw)
	}
	return values, nil
}

func (e *Engine) record(values models.ChannelValues) {
	for _, c := range models.Channels {
		e.histories[c].Push(values[c])
	}
	e.total++
}

func (e *Engine) classify(c models.Channel, v float64, t models.Threshold) models.ChannelVerdict {
	verdict := models.ChannelVerdict{
		Channel:    c,
		Value:      v,
		Threshold:  t,
		Status:     models.ChannelStatusNormal,
		Confidence: channelConfidence(v, t),
	}
	switch {
	case v < t.Min:
		verdict.Status = models.ChannelStatusWarning
		verdict.Reason = fmt.Sprintf("%s too low (%s < %s)", c, formatValue(v), formatValue(t.Min))
	case v > t.Max:
		verdict.Status = models.ChannelStatusWarning
		verdict.Reason = fmt.Sprintf("%s too high (%s > %s)", c, formatValue(v), formatValue(t.Max))
	default:
		verdict.Reason = fmt.Sprintf("%s within normal range (%s-%s)", c, formatValue(t.Min), formatValue(t.Max))
	}
	return verdict
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
