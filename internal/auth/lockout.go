package auth

import (
	"strings"
	"sync"
	"time"
)

type lockoutEntry struct {
	failures    int
	firstFail   time.Time
	lockedUntil time.Time
}

// Lockout counts failed logins per identifier. After maxAttempts failures
// inside window the identifier is locked for duration.
type Lockout struct {
	mu          sync.Mutex
	maxAttempts int
	window      time.Duration
	duration    time.Duration
	entries     map[string]*lockoutEntry
	lastPrune   time.Time
	now         func() time.Time
}

func NewLockout(maxAttempts int, window, duration time.Duration) *Lockout {
	return &Lockout{
		maxAttempts: maxAttempts,
		window:      window,
		duration:    duration,
		entries:     make(map[string]*lockoutEntry),
		now:         time.Now,
	}
}

func (l *Lockout) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Locked reports whether key is locked and for how much longer.
func (l *Lockout) Locked(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[normalizeKey(key)]
	if !ok {
		return false, 0
	}
	remaining := entry.lockedUntil.Sub(l.now())
	if remaining <= 0 {
		return false, 0
	}
	return true, remaining
}

// Fail records a failed attempt and reports whether key is now locked.
func (l *Lockout) Fail(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	key = normalizeKey(key)
	entry, ok := l.entries[key]
	if !ok || now.Sub(entry.firstFail) > l.window {
		entry = &lockoutEntry{firstFail: now}
		l.entries[key] = entry
	}

	entry.failures++
	if entry.failures >= l.maxAttempts {
		entry.lockedUntil = now.Add(l.duration)
		entry.failures = 0
		entry.firstFail = now
		return true
	}
	return false
}

// Reset forgets key after a successful login.
func (l *Lockout) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, normalizeKey(key))
}

// pruneLocked drops stale entries at most once per window. l.mu must be held.
func (l *Lockout) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < l.window {
		return
	}
	l.lastPrune = now
	for key, entry := range l.entries {
		if now.After(entry.lockedUntil) && now.Sub(entry.firstFail) > l.window {
			delete(l.entries, key)
		}
	}
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
