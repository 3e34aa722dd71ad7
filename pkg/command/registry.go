package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrDuplicateCommand is returned when two handlers share a name.
var ErrDuplicateCommand = errors.New("command: duplicate command name")

// Handler is implemented by one type per command.
type Handler interface {
	// Metadata returns the handler's immutable descriptor.
	Metadata() Metadata

	// Execute runs the command for actor. It reports whether the command was
	// understood and ran to completion; store failures return false after an
	// error message was sent. Exactly one message is sent per call.
	Execute(ctx context.Context, actor Actor, args []string) bool
}

// Registry maps lowercase command names to handlers. It is filled at startup
// and read concurrently afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler under its metadata name.
func (r *Registry) Register(h Handler) error {
	md := h.Metadata()
	if !md.Valid() {
		return fmt.Errorf("%w: handler %T has no metadata", ErrInvalidMetadata, h)
	}
	key := strings.ToLower(md.Name())
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, md.Name())
	}
	r.handlers[key] = h
	return nil
}

// MustRegister registers every handler and panics on the first error.
func (r *Registry) MustRegister(hs ...Handler) {
	for _, h := range hs {
		if err := r.Register(h); err != nil {
			panic(err)
		}
	}
}

// Get returns the handler for name (case-insensitive).
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[strings.ToLower(name)]
	return h, ok
}

// All returns every handler sorted by name.
func (r *Registry) All() []Handler {
	r.mu.RLock()
	list := make([]Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		list = append(list, h)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		return strings.ToLower(list[i].Metadata().Name()) < strings.ToLower(list[j].Metadata().Name())
	})
	return list
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
