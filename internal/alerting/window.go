package alerting

// MetricWindow keeps the most recent values of a series.
type MetricWindow struct {
	values []float64
	size   int
}

func NewMetricWindow(size int) *MetricWindow {
	// size below 1 would make the window never fill
	if size < 1 {
		size = 1
	}
	return &MetricWindow{
		values: make([]float64, 0, size),
		size:   size,
	}
}

// Push adds a value and slides the window when full.
func (w *MetricWindow) Push(val float64) {
	if len(w.values) >= w.size {
		w.values = w.values[1:]
	}
	w.values = append(w.values, val)
}

// IsConsistentlyBelow returns true if the window is full and every value is below threshold.
func (w *MetricWindow) IsConsistentlyBelow(threshold float64) bool {
	if len(w.values) < w.size {
		return false
	}
	for _, v := range w.values {
		if v >= threshold {
			return false
		}
	}
	return true
}

func (w *MetricWindow) Reset() {
	w.values = w.values[:0]
}
