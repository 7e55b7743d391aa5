package evaluator

import (
	"encoding/json"
	"math"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want float64
	}{
		{"nil", nil, 0},
		{"float", 27.456, 27.46},
		{"int", 65, 65},
		{"int64", int64(300), 300},
		{"json number", json.Number("45.1"), 45.1},
		{"numeric string", " 30.333 ", 30.33},
		{"non-numeric string", "abc", 0},
		{"bool", true, 0},
		{"slice", []int{1}, 0},
		{"negative", -0.01, 0},
		{"too large", 10000.5, 0},
		{"upper bound", 10000, 10000},
		{"zero", 0.0, 0},
		{"NaN", math.NaN(), 0},
		{"Inf", math.Inf(1), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Validate(tt.raw); got != tt.want {
				t.Errorf("Validate(%v) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestValidate_Idempotent(t *testing.T) {
	inputs := []float64{0, 0.005, 1.234, 19.999, 27.5, 123.456, 9999.994, 10000, -3, 12000}
	for _, x := range inputs {
		once := Validate(x)
		twice := Validate(once)
		if once != twice {
			t.Errorf("Validate not idempotent for %v: %v then %v", x, once, twice)
		}
		if once < 0 || once > MaxPlausibleValue {
			t.Errorf("Validate(%v) = %v out of bounds", x, once)
		}
	}
}
