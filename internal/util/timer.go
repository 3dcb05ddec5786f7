package util

import "time"

// Timer is a lightweight helper to measure elapsed durations.
type Timer struct {
	start time.Time
}

// StartTimer creates a new timer starting at current time.
func StartTimer() Timer {
	return Timer{start: time.Now()}
}

// ElapsedMs returns the elapsed milliseconds since start.
func (t Timer) ElapsedMs() int64 {
	if t.start.IsZero() {
		return 0
	}
	return time.Since(t.start).Milliseconds()
}

// Lap is one named segment recorded by a Stopwatch.
type Lap struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// Stopwatch records consecutive named laps, e.g. one per model call.
// It is not safe for concurrent use.
type Stopwatch struct {
	start time.Time
	last  time.Time
	laps  []Lap
	now   func() time.Time
}

// NewStopwatch starts a stopwatch at the current time.
func NewStopwatch() *Stopwatch {
	return newStopwatch(time.Now)
}

func newStopwatch(now func() time.Time) *Stopwatch {
	started := now()
	return &Stopwatch{start: started, last: started, now: now}
}

// Lap closes the current segment under name and returns its duration.
func (s *Stopwatch) Lap(name string) time.Duration {
	current := s.now()
	elapsed := current.Sub(s.last)
	s.last = current
	s.laps = append(s.laps, Lap{Name: name, Duration: elapsed})
	return elapsed
}

// Laps returns a copy of the recorded laps in order.
func (s *Stopwatch) Laps() []Lap {
	out := make([]Lap, len(s.laps))
	copy(out, s.laps)
	return out
}

// Total is the time since the stopwatch started.
func (s *Stopwatch) Total() time.Duration {
	return s.now().Sub(s.start)
}
