package chat

import "sync"

// Active holds the identifier of the conversation whose events are rendered
// live. Components consult it when each event is handled instead of caching
// the value.
type Active struct {
	mu sync.RWMutex
	id string
}

// ID returns the active conversation, or "" when none is selected.
func (a *Active) ID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.id
}

// Is reports whether id is the active conversation.
func (a *Active) Is(id string) bool {
	return id != "" && a.ID() == id
}

// Set switches the active conversation and returns the previous one.
func (a *Active) Set(id string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.id
	a.id = id
	return prev
}
