// Package ratelimit provides a fixed-window request counter keyed by
// requester+path. The limiter is an explicit component with an injected
// clock: construct it at server start, stop it at shutdown.
package ratelimit

import (
	"sync"
	"time"
)

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type window struct {
	start time.Time
	count int
}

type Limiter struct {
	clock  Clock
	window time.Duration
	max    int

	mu      sync.Mutex
	entries map[string]window
	done    chan struct{}
}

// New creates a limiter using the system clock and starts its sweeper.
func New(windowSize time.Duration, max int) *Limiter {
	return NewWithClock(windowSize, max, systemClock{})
}

// NewWithClock creates a limiter with a caller-supplied clock.
func NewWithClock(windowSize time.Duration, max int, clock Clock) *Limiter {
	l := &Limiter{
		clock:   clock,
		window:  windowSize,
		max:     max,
		entries: make(map[string]window),
		done:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow records one request for key and reports whether it fits in the
// current window. A max of zero or below disables limiting.
func (l *Limiter) Allow(key string) bool {
	if l.max <= 0 {
		return true
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || now.Sub(entry.start) >= l.window {
		l.entries[key] = window{start: now, count: 1}
		return true
	}
	entry.count++
	l.entries[key] = entry
	return entry.count <= l.max
}

// Stop shuts down the background sweeper.
func (l *Limiter) Stop() {
	close(l.done)
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			now := l.clock.Now()
			l.mu.Lock()
			for key, entry := range l.entries {
				if now.Sub(entry.start) >= l.window {
					delete(l.entries, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
