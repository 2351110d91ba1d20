package limiter

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	failCount    int
	blockedUntil time.Time
	updatedAt    time.Time
}

// Memory is an in-process limiter with a sliding failure window and lockout.
// Counters are kept per (username, ip) pair; a nil ipHash keys by username alone.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]*entry
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

// NewMemory constructs an in-memory limiter.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	return &Memory{
		entries:  make(map[string]*entry),
		window:   window,
		maxFails: maxFails,
		blockFor: blockFor,
		now:      time.Now,
	}
}

// NewDefault returns a limiter with the default policy: 5 failures in 15 minutes block for 15 minutes.
func NewDefault() *Memory {
	return NewMemory(DefaultWindow, DefaultMaxFails, DefaultBlockFor)
}

// SetClock replaces the time source.
func (l *Memory) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

func key(username string, ipHash []byte) string {
	return username + "\x00" + string(ipHash)
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *Memory) Allow(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key(username, ipHash)]
	if !ok {
		return true, 0, nil
	}
	now := l.now()
	if e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success resets counters for (username, ip).
func (l *Memory) Success(_ context.Context, username string, ipHash []byte) error {
	l.mu.Lock()
	delete(l.entries, key(username, ipHash))
	l.mu.Unlock()
	return nil
}

// Failure records a failed attempt; may set a block until a future time.
func (l *Memory) Failure(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := key(username, ipHash)
	e, ok := l.entries[k]
	switch {
	case !ok:
		e = &entry{failCount: 1}
		l.entries[k] = e
	case now.Sub(e.updatedAt) > l.window:
		e.failCount = 1
	default:
		e.failCount++
	}
	e.updatedAt = now

	if e.failCount >= l.maxFails {
		e.blockedUntil = now.Add(l.blockFor)
		return true, l.blockFor, nil
	}
	return false, 0, nil
}
