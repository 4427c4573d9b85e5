// Package pending tracks actions a player has requested but that still need a
// target: the player's next tap on an entity resolves them.
package pending

import (
	"strings"
	"sync"
	"time"
)

// Kind is the deferred action.
type Kind int

const (
	KindRemove Kind = iota + 1
	KindLock
	KindUnlock
	KindGiveaway
)

func (k Kind) String() string {
	switch k {
	case KindRemove:
		return "remove"
	case KindLock:
		return "lock"
	case KindUnlock:
		return "unlock"
	case KindGiveaway:
		return "giveaway"
	}
	return "unknown"
}

// Interaction is one queued action.
type Interaction struct {
	Kind       Kind
	Args       []string
	Registered time.Time
}

// Registry maps a player key to at most one pending interaction.
// Register and Resolve are atomic with respect to each other.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Interaction
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Interaction),
		now:     time.Now,
	}
}

// normalize lower-cases the key so lookups are case-insensitive.
func normalize(key string) string {
	return strings.ToLower(key)
}

// Register stores an interaction for key, replacing any earlier one.
func (r *Registry) Register(key string, kind Kind, args []string) {
	var copied []string
	if len(args) > 0 {
		copied = make([]string, len(args))
		copy(copied, args)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[normalize(key)] = Interaction{Kind: kind, Args: copied, Registered: r.now()}
}

// Resolve removes and returns the interaction for key.
func (r *Registry) Resolve(key string) (Interaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := normalize(key)
	in, ok := r.entries[k]
	if ok {
		delete(r.entries, k)
	}
	return in, ok
}

// Clear drops the interaction for key, if any. It reports whether one existed.
func (r *Registry) Clear(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := normalize(key)
	_, ok := r.entries[k]
	delete(r.entries, k)
	return ok
}

// Oldest returns when the longest-waiting interaction was registered.
func (r *Registry) Oldest() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest time.Time
	for _, in := range r.entries {
		if oldest.IsZero() || in.Registered.Before(oldest) {
			oldest = in.Registered
		}
	}
	return oldest, !oldest.IsZero()
}

// Len returns the number of players with a pending interaction.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
