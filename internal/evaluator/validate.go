package evaluator

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// MaxPlausibleValue is the largest raw value accepted from any sensor.
const MaxPlausibleValue = 10000

// Validate turns a raw channel value into a usable number. Missing,
// non-numeric, non-finite, negative and implausibly large values all become
// 0; anything else is rounded to 2 decimals. It never fails.
func Validate(raw any) float64 {
	v, ok := toFloat(raw)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < 0 || v > MaxPlausibleValue {
		return 0
	}
	return round2(v)
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
