package evaluator

import "math"

// History is a fixed-capacity FIFO of recent validated values for one
// channel. Once full, each Push evicts the oldest value.
type History struct {
	buf   []float64
	start int
	size  int
}

// NewHistory creates an empty history holding at most capacity values.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]float64, capacity)}
}

// Push appends v, evicting the oldest value when the buffer is full.
func (h *History) Push(v float64) {
	end := (h.start + h.size) % len(h.buf)
	h.buf[end] = v
	if h.size < len(h.buf) {
		h.size++
		return
	}
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of values held.
func (h *History) Len() int {
	return h.size
}

// Cap returns the maximum number of values held.
func (h *History) Cap() int {
	return len(h.buf)
}

// Values returns the held values, oldest first.
func (h *History) Values() []float64 {
	out := make([]float64, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Reset discards every value.
func (h *History) Reset() {
	h.start = 0
	h.size = 0
}

// Stats returns the sample mean and Bessel-corrected standard deviation.
// The deviation is 0 for a single value; ok is false when empty.
func (h *History) Stats() (mean, stddev float64, ok bool) {
	if h.size == 0 {
		return 0, 0, false
	}
	var sum float64
	for i := 0; i < h.size; i++ {
		sum += h.buf[(h.start+i)%len(h.buf)]
	}
	mean = sum / float64(h.size)
	if h.size == 1 {
		return mean, 0, true
	}
	var sq float64
	for i := 0; i < h.size; i++ {
		d := h.buf[(h.start+i)%len(h.buf)] - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(h.size-1)), true
}
