package macro

import (
	"fmt"
	"sync"
)

// Registry holds validated macros by id, shared between recording
// sessions and playback sessions.
type Registry struct {
	mu     sync.RWMutex
	macros map[string]*ChatMacro
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{macros: map[string]*ChatMacro{}}
}

// Register validates macro and stores it, failing fast on an invalid
// nesting depth or empty action list rather than at playback time.
func (r *Registry) Register(m *ChatMacro) (string, error) {
	if err := Validate(m); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.macros[m.ID] = m
	return m.ID, nil
}

// Get returns the macro registered under id, or an error if none is.
func (r *Registry) Get(id string) (*ChatMacro, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.macros[id]
	if !ok {
		return nil, fmt.Errorf("macro: no macro registered under id %q", id)
	}
	return m, nil
}
