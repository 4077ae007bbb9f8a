// Package ratelimit implements the in-memory sliding-window limiter used for
// the per-IP connection budget and the per-user message budget.
package ratelimit

import (
	"sync"
	"time"

	"realtime-service/internal/apperror"
	"realtime-service/internal/clock"
)

// Rule is a budget of Limit hits per Window. A key that exceeds it is
// rejected outright for BlockDuration.
type Rule struct {
	Name          string        `yaml:"name"`
	Limit         int           `yaml:"limit"`
	Window        time.Duration `yaml:"window"`
	BlockDuration time.Duration `yaml:"block_duration"`
}

// Default rules
var (
	ConnectionRule = Rule{Name: "connection", Limit: 10, Window: time.Minute, BlockDuration: 5 * time.Minute}
	MessageRule    = Rule{Name: "message", Limit: 60, Window: time.Minute, BlockDuration: time.Minute}
)

type window struct {
	hits         []time.Time
	blockedUntil time.Time
}

// Limiter keeps one sliding window per (rule, key). State is lost on restart.
type Limiter struct {
	mu      sync.Mutex
	clock   clock.Clock
	windows map[string]*window
}

func NewLimiter(clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Limiter{
		clock:   clk,
		windows: make(map[string]*window),
	}
}

// Allow records a hit for key under rule. It returns nil when the hit fits the
// budget and a RATE_LIMITED AppError naming the rule otherwise.
func (l *Limiter) Allow(key string, rule Rule) error {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	id := rule.Name + ":" + key
	w, ok := l.windows[id]
	if !ok {
		w = &window{}
		l.windows[id] = w
	}

	if now.Before(w.blockedUntil) {
		return apperror.RateLimit(rule.Name, w.blockedUntil.Sub(now))
	}

	w.hits = prune(w.hits, now.Add(-rule.Window))
	if len(w.hits) >= rule.Limit {
		w.blockedUntil = now.Add(rule.BlockDuration)
		w.hits = w.hits[:0]
		return apperror.RateLimit(rule.Name, rule.BlockDuration)
	}

	w.hits = append(w.hits, now)
	return nil
}

// Reset forgets everything recorded for key under rule.
func (l *Limiter) Reset(key string, rule Rule) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, rule.Name+":"+key)
}

// Sweep drops keys that are neither blocked nor hold a hit newer than idle.
func (l *Limiter) Sweep(idle time.Duration) int {
	now := l.clock.Now()
	cutoff := now.Add(-idle)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, w := range l.windows {
		if now.Before(w.blockedUntil) {
			continue
		}
		w.hits = prune(w.hits, cutoff)
		if len(w.hits) == 0 {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// prune drops hits at or before cutoff. Hits are kept in arrival order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0], hits[i:]...)
}
