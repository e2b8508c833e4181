package alerting

import (
	"sync"
	"time"
)

const (
	// maxSamplesPerAlert is the maximum number of trigger times kept per alert.
	maxSamplesPerAlert = 120
	// maxSampleAge is the age after which a trigger time is evicted.
	maxSampleAge = time.Hour
)

// RepeatTracker keeps per-alert buffers of recent trigger times so repeated
// breaches within a window can be counted.
type RepeatTracker struct {
	buffers map[string][]time.Time
	mu      sync.RWMutex
}

// NewRepeatTracker creates an empty tracker.
func NewRepeatTracker() *RepeatTracker {
	return &RepeatTracker{
		buffers: make(map[string][]time.Time),
	}
}

// Record adds a trigger time for id and evicts stale entries. Redelivery of
// a trigger time already recorded is ignored.
func (t *RepeatTracker) Record(id string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	samples := t.buffers[id]
	for _, s := range samples {
		if s.Equal(at) {
			return
		}
	}
	samples = append(samples, at)

	cutoff := at.Add(-maxSampleAge)
	start := 0
	for start < len(samples) && samples[start].Before(cutoff) {
		start++
	}
	samples = samples[start:]

	if len(samples) > maxSamplesPerAlert {
		samples = samples[len(samples)-maxSamplesPerAlert:]
	}

	t.buffers[id] = samples
}

// CountWithin returns how many trigger times of id fall in (now-window, now].
func (t *RepeatTracker) CountWithin(id string, window time.Duration, now time.Time) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	windowStart := now.Add(-window)
	n := 0
	for _, s := range t.buffers[id] {
		if s.After(windowStart) && !s.After(now) {
			n++
		}
	}
	return n
}

// Reset forgets id.
func (t *RepeatTracker) Reset(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.buffers, id)
}

// Prune drops alerts whose newest trigger time is older than maxSampleAge.
func (t *RepeatTracker) Prune(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := now.Add(-maxSampleAge)
	for id, samples := range t.buffers {
		if len(samples) == 0 || samples[len(samples)-1].Before(cutoff) {
			delete(t.buffers, id)
		}
	}
}

// Len returns the number of tracked alerts.
func (t *RepeatTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.buffers)
}
