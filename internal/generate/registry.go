package generate

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Guard errors returned by Registry.Begin. Both mean "do nothing": the
// request is either already running or completed moments ago.
var (
	ErrInFlight    = errors.New("generation already in flight")
	ErrCoolingDown = errors.New("generation cooling down")
)

// DefaultCooldown is how long a completed dedup key keeps suppressing
// re-fires. UI re-render races double-invoke within well under this
// window.
const DefaultCooldown = 5 * time.Second

type guardState int

const (
	stateInFlight guardState = iota
	stateCoolingDown
)

type guardEntry struct {
	state     guardState
	expiresAt time.Time // meaningful for stateCoolingDown only
}

// Registry enforces at-most-one in-flight generation per logical
// request, plus a short cooldown after completion. It is owned by the
// enclosing session scope and injected into the Coordinator; there is no
// ambient global state. Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]guardEntry
	cooldown time.Duration
	now      func() time.Time // injectable for tests
}

// NewRegistry creates a registry. Non-positive cooldown selects
// DefaultCooldown.
func NewRegistry(cooldown time.Duration) *Registry {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Registry{
		entries:  make(map[string]guardEntry),
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Begin claims key for a new generation. It fails with ErrInFlight while
// a request with the same key is running, and with ErrCoolingDown within
// the cooldown window after one finished. Setting retry bypasses the
// cooldown but never the in-flight guard; at most one stream runs per key.
func (r *Registry) Begin(key string, retry bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if ok {
		switch entry.state {
		case stateInFlight:
			return fmt.Errorf("dedup key %q: %w", key, ErrInFlight)
		case stateCoolingDown:
			if !retry && r.now().Before(entry.expiresAt) {
				return fmt.Errorf("dedup key %q: %w", key, ErrCoolingDown)
			}
		}
	}

	r.entries[key] = guardEntry{state: stateInFlight}
	r.expireLocked()
	return nil
}

// Finish releases key and starts its cooldown window. Called on every
// terminal state (complete, stopped, cancelled).
func (r *Registry) Finish(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = guardEntry{
		state:     stateCoolingDown,
		expiresAt: r.now().Add(r.cooldown),
	}
}

// expireLocked drops cooled-down entries whose window has passed, so the
// map does not grow with conversation length.
func (r *Registry) expireLocked() {
	now := r.now()
	for key, entry := range r.entries {
		if entry.state == stateCoolingDown && !now.Before(entry.expiresAt) {
			delete(r.entries, key)
		}
	}
}

// dedupKeyPrefixLen bounds how much message content feeds the fallback
// hash.
const dedupKeyPrefixLen = 64

// DedupKey derives the logical request identity: the triggering
// message's id when it has one, otherwise a hash of a content prefix.
func DedupKey(messageID uuid.UUID, content string) string {
	if messageID != uuid.Nil {
		return "msg:" + messageID.String()
	}
	if len(content) > dedupKeyPrefixLen {
		content = content[:dedupKeyPrefixLen]
	}
	h := fnv.New64a()
	h.Write([]byte(content))
	return fmt.Sprintf("sum:%016x", h.Sum64())
}
