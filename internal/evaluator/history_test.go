package evaluator

import (
	"math"
	"testing"
)

func TestHistory_PushAndEvict(t *testing.T) {
	h := NewHistory(3)
	for _, v := range []float64{1, 2, 3} {
		h.Push(v)
	}
	if h.Len() != 3 {
		t.Fatalf("expected len 3, got %d", h.Len())
	}

	h.Push(4)
	h.Push(5)

	got := h.Values()
	want := []float64{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %v, got %v", i, want[i], got[i])
		}
	}
	if h.Len() != h.Cap() {
		t.Errorf("expected full buffer, len=%d cap=%d", h.Len(), h.Cap())
	}
}

func TestHistory_Stats(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		if _, _, ok := NewHistory(5).Stats(); ok {
			t.Error("expected no stats for empty history")
		}
	})

	t.Run("single value", func(t *testing.T) {
		h := NewHistory(5)
		h.Push(7)
		mean, sd, ok := h.Stats()
		if !ok || mean != 7 || sd != 0 {
			t.Errorf("expected (7, 0, true), got (%v, %v, %v)", mean, sd, ok)
		}
	})

	t.Run("sample deviation", func(t *testing.T) {
		h := NewHistory(10)
		for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
			h.Push(v)
		}
		mean, sd, _ := h.Stats()
		if mean != 5 {
			t.Errorf("expected mean 5, got %v", mean)
		}
		// sum of squares 32 over n-1 = 7
		if want := math.Sqrt(32.0 / 7.0); math.Abs(sd-want) > 1e-9 {
			t.Errorf("expected sd %v, got %v", want, sd)
		}
	})

	t.Run("uses only retained values", func(t *testing.T) {
		h := NewHistory(2)
		h.Push(100)
		h.Push(1)
		h.Push(3)
		mean, _, _ := h.Stats()
		if mean != 2 {
			t.Errorf("expected mean 2 after eviction, got %v", mean)
		}
	})
}

func TestHistory_Reset(t *testing.T) {
	h := NewHistory(2)
	h.Push(1)
	h.Push(2)
	h.Reset()
	if h.Len() != 0 || len(h.Values()) != 0 {
		t.Errorf("expected empty history after reset, got %v", h.Values())
	}
	h.Push(9)
	if got := h.Values(); len(got) != 1 || got[0] != 9 {
		t.Errorf("expected [9], got %v", got)
	}
}
