package pricing

import "sync"

// History is an ordered, append-only price log. It is display data only and
// is never truncated; a restart begins a new History instead.
type History struct {
	mu     sync.RWMutex
	points []float64
}

func NewHistory(points ...float64) *History {
	h := &History{}
	h.points = append(h.points, points...)
	return h
}

func (h *History) Append(price float64) {
	h.mu.Lock()
	h.points = append(h.points, price)
	h.mu.Unlock()
}

// Points returns a copy of the log.
func (h *History) Points() []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]float64, len(h.points))
	copy(out, h.points)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.points)
}

// Last returns the most recent price, false when the log is empty.
func (h *History) Last() (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.points) == 0 {
		return 0, false
	}
	return h.points[len(h.points)-1], true
}
