package middleware

import (
	"maps"
	"sync"
	"time"
)

// InfoBoard is a concurrent key/value store monitor middleware uses to
// publish statistics for the monitoring API.
type InfoBoard struct {
	mu      sync.RWMutex
	values  map[string]any
	started time.Time
}

// NewInfoBoard creates an empty board
func NewInfoBoard() *InfoBoard {
	return &InfoBoard{values: make(map[string]any), started: time.Now()}
}

// Set stores value under key
func (b *InfoBoard) Set(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = value
}

// Get returns the value under key
func (b *InfoBoard) Get(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	return v, ok
}

// Int returns the counter under key, zero when absent or not a counter
func (b *InfoBoard) Int(key string) int64 {
	v, _ := b.Get(key)
	n, _ := v.(int64)
	return n
}

// Increment adds delta to the counter under key and returns the new value.
// A non-counter value is replaced.
func (b *InfoBoard) Increment(key string, delta int64) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, _ := b.values[key].(int64)
	n += delta
	b.values[key] = n
	return n
}

// Max keeps the larger of the stored counter and v
func (b *InfoBoard) Max(key string, v int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n, ok := b.values[key].(int64); !ok || v > n {
		b.values[key] = v
	}
}

// Reset zeroes the counter under key
func (b *InfoBoard) Reset(key string) {
	b.Set(key, int64(0))
}

// Clear removes every value and restarts the uptime clock
func (b *InfoBoard) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.values)
	b.started = time.Now()
}

// Started returns when the board was created or last cleared
func (b *InfoBoard) Started() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.started
}

// Snapshot returns a copy of every value
func (b *InfoBoard) Snapshot() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.values)
}

// perMinute returns the rate of the counter under key since start. Below six
// seconds of uptime the rate is reported as zero.
func (b *InfoBoard) perMinute(key string) float64 {
	elapsed := time.Since(b.Started())
	if elapsed < 6*time.Second {
		return 0
	}
	return float64(b.Int(key)) / elapsed.Minutes()
}
