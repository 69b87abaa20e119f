package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// StatusStore persists a user's presence status against their durable
// profile. Implemented by the user repository.
type StatusStore interface {
	SetStatus(ctx context.Context, userID, status string) error
}

// Broadcaster fans an event out to every connected client. Implemented by
// the Hub (through redis pub/sub so all instances see it).
type Broadcaster interface {
	BroadcastAll(event string, data any)
}

// PresenceTracker derives online/offline state from activity signals and a
// per-user inactivity timeout. Activity is heartbeat-style (explicit
// activity events plus the implicit authenticate), not per-message, which
// bounds presence-update volume independent of chat volume.
type PresenceTracker struct {
	mu     sync.Mutex
	online map[string]bool
	timers map[string]*time.Timer
	// gens invalidates in-flight timer callbacks: a timer that was already
	// firing when Stop() was called still runs, so each armed timer carries
	// the generation it belongs to and expire ignores stale ones. Counters
	// are monotonic per user and never reset, so a generation can never be
	// reused.
	gens map[string]uint64

	window  time.Duration
	store   StatusStore
	bc      Broadcaster
	log     *slog.Logger
	persist time.Duration // timeout for the detached status write
}

func NewPresenceTracker(window time.Duration, store StatusStore, bc Broadcaster, log *slog.Logger) *PresenceTracker {
	return &PresenceTracker{
		online:  make(map[string]bool),
		timers:  make(map[string]*time.Timer),
		gens:    make(map[string]uint64),
		window:  window,
		store:   store,
		bc:      bc,
		log:     log,
		persist: 5 * time.Second,
	}
}

// RecordActivity marks the user online if they were not, and in all cases
// cancels and rearms the inactivity timer in one step. Cancel-then-set,
// never cancel-and-forget: exactly one pending timer per online user.
func (p *PresenceTracker) RecordActivity(userID string) {
	p.mu.Lock()
	wasOnline := p.online[userID]
	p.online[userID] = true
	if t, ok := p.timers[userID]; ok {
		t.Stop()
	}
	p.gens[userID]++
	gen := p.gens[userID]
	p.timers[userID] = time.AfterFunc(p.window, func() { p.expire(userID, gen) })
	p.mu.Unlock()

	if !wasOnline {
		p.announce(userID, StatusOnline)
	}
}

// Disconnect transitions the user offline immediately, regardless of timer
// state. Calling it for an already-offline user does nothing, so a late
// disconnect never produces a duplicate status broadcast.
func (p *PresenceTracker) Disconnect(userID string) {
	p.mu.Lock()
	wasOnline := p.online[userID]
	if t, ok := p.timers[userID]; ok {
		t.Stop()
		delete(p.timers, userID)
	}
	p.gens[userID]++ // invalidate any expire already in flight
	delete(p.online, userID)
	p.mu.Unlock()

	if wasOnline {
		p.announce(userID, StatusOffline)
	}
}

// Online reports whether the tracker currently considers the user online.
func (p *PresenceTracker) Online(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

// expire runs when the inactivity timer armed at generation gen fires. A
// timer that was already firing when RecordActivity stopped it still gets
// here; it must not act on the rearmed record, so anything but the current
// generation is a stale fire and is dropped.
func (p *PresenceTracker) expire(userID string, gen uint64) {
	p.mu.Lock()
	if p.gens[userID] != gen || !p.online[userID] {
		p.mu.Unlock()
		return
	}
	p.gens[userID]++
	delete(p.online, userID)
	delete(p.timers, userID)
	p.mu.Unlock()

	p.announce(userID, StatusOffline)
}

// announce persists the new status and broadcasts the change. Both are
// fire-and-forget: a storage or broadcast failure is logged and never blocks
// or reverts the in-memory transition.
func (p *PresenceTracker) announce(userID, status string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.persist)
		defer cancel()
		if err := p.store.SetStatus(ctx, userID, status); err != nil {
			p.log.Error("persist presence status", "user", userID, "status", status, "err", err)
		}
	}()
	p.bc.BroadcastAll(EvUserStatusChanged, StatusChangedPayload{UserID: userID, Status: status})
}
