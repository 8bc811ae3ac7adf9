// Package market owns market data acquisition and the rolling history
// buffers the calculators read from. Buffers are single-writer: the monitor
// loop appends once per tick, nothing else mutates them.
package market

import (
	"time"
)

// RollingWindow is a bounded append-only window of observations. Oldest
// entries fall off once the window is full. It backs the trailing daily DVOL
// history, the hourly spot closes and the skew history.
type RollingWindow struct {
	window int
	values []float64
}

// NewRollingWindow creates a window bounded to n entries.
func NewRollingWindow(n int) *RollingWindow {
	return &RollingWindow{window: n}
}

// Seed replaces the buffer with the trailing window of vs.
func (w *RollingWindow) Seed(vs []float64) {
	if len(vs) > w.window {
		vs = vs[len(vs)-w.window:]
	}
	w.values = append(w.values[:0], vs...)
}

// Append adds one observation, evicting the oldest when full.
func (w *RollingWindow) Append(v float64) {
	w.values = append(w.values, v)
	if len(w.values) > w.window {
		w.values = w.values[1:]
	}
}

// Len returns the number of buffered observations.
func (w *RollingWindow) Len() int {
	return len(w.values)
}

// Values returns the buffered window, oldest first. Callers must not mutate
// the returned slice.
func (w *RollingWindow) Values() []float64 {
	return w.values
}

// TickPoint is one timestamped observation in a TickSeries.
type TickPoint struct {
	Timestamp time.Time
	Value     float64
}

// TickSeries is a bounded time window of intraday observations, used for the
// 1h spot/DVOL changes and the DVOL slope. Points older than the retention
// window are trimmed on every append.
type TickSeries struct {
	retention time.Duration
	points    []TickPoint
}

// NewTickSeries creates a series retaining points for the given duration.
func NewTickSeries(retention time.Duration) *TickSeries {
	return &TickSeries{retention: retention}
}

// Append records a point and trims everything older than the retention
// window relative to ts.
func (s *TickSeries) Append(ts time.Time, v float64) {
	s.points = append(s.points, TickPoint{Timestamp: ts, Value: v})
	cutoff := ts.Add(-s.retention)
	i := 0
	for i < len(s.points) && s.points[i].Timestamp.Before(cutoff) {
		i++
	}
	s.points = s.points[i:]
}

// Len returns the number of retained points.
func (s *TickSeries) Len() int {
	return len(s.points)
}

// Latest returns the most recent point, or false when the series is empty.
func (s *TickSeries) Latest() (TickPoint, bool) {
	if len(s.points) == 0 {
		return TickPoint{}, false
	}
	return s.points[len(s.points)-1], true
}

// BaseOver returns the oldest point at or after now minus lookback. The
// second return is false when no point falls inside the window.
func (s *TickSeries) BaseOver(now time.Time, lookback time.Duration) (TickPoint, bool) {
	cutoff := now.Add(-lookback)
	for i := range s.points {
		if !s.points[i].Timestamp.Before(cutoff) {
			return s.points[i], true
		}
	}
	return TickPoint{}, false
}

// Points returns the retained points, oldest first. Callers must not mutate
// the returned slice.
func (s *TickSeries) Points() []TickPoint {
	return s.points
}
