package scanner

import (
	"sync"
	"time"
)

// DefaultCooldown is the window in which the same payload is rejected.
const DefaultCooldown = 5 * time.Second

// DuplicateGuard suppresses repeated triggers for the same payload.
//
// The cooldown pairing (last payload, accepted-at) and the debounce hold are
// independent: releasing the hold on re-arm keeps the pairing, so a code still
// in frame after re-arm is rejected until the cooldown elapses.
type DuplicateGuard struct {
	cooldown time.Duration

	mu             sync.Mutex
	lastPayload    string
	lastAcceptedAt time.Time
	hasLast        bool
	held           bool
}

// NewDuplicateGuard creates a guard. A non-positive cooldown uses DefaultCooldown.
func NewDuplicateGuard(cooldown time.Duration) *DuplicateGuard {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &DuplicateGuard{cooldown: cooldown}
}

// Accept returns false iff payload equals the last accepted payload and less
// than the cooldown has passed since it was accepted. Otherwise it records
// the payload and time and returns true.
func (g *DuplicateGuard) Accept(payload string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.hasLast && payload == g.lastPayload && now.Sub(g.lastAcceptedAt) < g.cooldown {
		return false
	}
	g.lastPayload = payload
	g.lastAcceptedAt = now
	g.hasLast = true
	return true
}

// Hold sets the debounce lock.
func (g *DuplicateGuard) Hold() {
	g.mu.Lock()
	g.held = true
	g.mu.Unlock()
}

// Release clears the debounce lock. The cooldown pairing is kept.
func (g *DuplicateGuard) Release() {
	g.mu.Lock()
	g.held = false
	g.mu.Unlock()
}

// Held reports whether the debounce lock is set.
func (g *DuplicateGuard) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}
