package models

import "time"

// Reading is one raw arrival from the device: a value per channel as it came
// off the wire. Values may be nil, numbers, numeric strings or junk.
type Reading map[Channel]any

// ChannelStatus is the verdict for a single channel.
type ChannelStatus string

const (
	ChannelStatusNormal  ChannelStatus = "NORMAL"
	ChannelStatusWarning ChannelStatus = "WARNING"
)

// GlobalStatus is the verdict for a whole reading.
type GlobalStatus string

const (
	StatusAcceptable   GlobalStatus = "ACCEPTABLE"
	StatusUnacceptable GlobalStatus = "UNACCEPTABLE"
)

// Threshold is the acceptable range applied to a channel.
type Threshold struct {
	Min      float64 `json:"min" msgpack:"min"`
	Max      float64 `json:"max" msgpack:"max"`
	Adaptive bool    `json:"adaptive" msgpack:"adaptive"`
}

// Width returns max - min.
func (t Threshold) Width() float64 {
	return t.Max - t.Min
}

// ChannelVerdict is the classification of one validated channel value.
type ChannelVerdict struct {
	Channel    Channel       `json:"channel" msgpack:"channel"`
	Value      float64       `json:"value" msgpack:"value"`
	Threshold  Threshold     `json:"threshold" msgpack:"threshold"`
	Status     ChannelStatus `json:"status" msgpack:"status"`
	Reason     string        `json:"reason" msgpack:"reason"`
	Confidence float64       `json:"confidence" msgpack:"confidence"`
}

// Result is the outcome of evaluating one reading.
type Result struct {
	ID             string           `json:"id" msgpack:"id"`
	Timestamp      time.Time        `json:"timestamp" msgpack:"timestamp"`
	Values         ChannelValues    `json:"values" msgpack:"values"`
	Verdicts       []ChannelVerdict `json:"verdicts" msgpack:"verdicts"`
	Status         GlobalStatus     `json:"status" msgpack:"status"`
	Explanation    string           `json:"explanation" msgpack:"explanation"`
	Confidence     float64          `json:"confidence" msgpack:"confidence"`
	ReadingCount   int              `json:"readingCount" msgpack:"readingCount"`
	AdaptiveActive bool             `json:"adaptiveActive" msgpack:"adaptiveActive"`
}

// Acceptable reports whether every channel was normal.
func (r *Result) Acceptable() bool {
	return r.Status == StatusAcceptable
}

// Warnings returns the verdicts that were out of range.
func (r *Result) Warnings() []ChannelVerdict {
	var out []ChannelVerdict
	for _, v := range r.Verdicts {
		if v.Status == ChannelStatusWarning {
			out = append(out, v)
		}
	}
	return out
}

// EngineStatus describes the learning state of an evaluation engine.
type EngineStatus struct {
	TotalReadings   int             `json:"totalReadings"`
	AdaptiveEnabled bool            `json:"adaptiveEnabled"`
	AdaptiveActive  bool            `json:"adaptiveActive"`
	BufferSizes     map[Channel]int `json:"bufferSizes"`
	BufferCapacity  int             `json:"bufferCapacity"`
}

// ChannelThreshold reports the configured and currently applied range of a channel.
type ChannelThreshold struct {
	Channel Channel   `json:"channel"`
	Name    string    `json:"name"`
	Unit    string    `json:"unit"`
	Default Threshold `json:"default"`
	Current Threshold `json:"current"`
}
