package channels

import (
	"fmt"
	"sync"

	"github.com/nextlevelbuilder/goclaw/internal/cronerr"
)

// Registry looks up registered Channels by ID and resolves the "last"
// sentinel to an operator-configured default.
type Registry struct {
	mu        sync.RWMutex
	channels  map[string]Channel
	defaultID string
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]Channel)}
}

// Register adds or replaces a channel. id must be one of KnownIDs.
func (r *Registry) Register(id string, ch Channel) error {
	if !KnownIDs[id] {
		return fmt.Errorf("%w: %s", cronerr.ErrChannelNotFound, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[id] = ch
	return nil
}

// SetDefault designates which channel "last" resolves to.
func (r *Registry) SetDefault(id string) error {
	if !KnownIDs[id] {
		return fmt.Errorf("%w: %s", cronerr.ErrChannelNotFound, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultID = id
	return nil
}

// Get resolves id (including the "last" sentinel) to a registered
// Channel. It returns ErrChannelNotFound if id is unknown, unregistered,
// or "last" with no default configured.
func (r *Registry) Get(id string) (Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	target := id
	if target == IDLast {
		if r.defaultID == "" {
			return nil, fmt.Errorf("%w: no default channel configured for \"last\"", cronerr.ErrChannelNotFound)
		}
		target = r.defaultID
	}
	ch, ok := r.channels[target]
	if !ok {
		return nil, fmt.Errorf("%w: %s", cronerr.ErrChannelNotFound, id)
	}
	return ch, nil
}

// IsAvailable reports whether id resolves to a registered, available
// channel. It never returns an error — callers that need the reason
// a channel is unavailable should call Get instead.
func (r *Registry) IsAvailable(id string) bool {
	ch, err := r.Get(id)
	if err != nil {
		return false
	}
	return ch.Available()
}

// ListAll returns the IDs of every registered channel.
func (r *Registry) ListAll() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	return ids
}
