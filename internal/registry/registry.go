// Package registry tracks the live connections of each gateway server.
//
// Every Registry guards its set with its own lock; Add, Remove, Count and List
// all take that lock, so a reader never observes a half-applied mutation.
// Registries of different servers share nothing.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vesaa/gatewatch/internal/models"
)

var (
	// ErrDuplicateID means a connection id was added twice. It indicates a bug
	// in accept handling and must be surfaced, not ignored.
	ErrDuplicateID = errors.New("duplicate connection id")

	// ErrUnknownServer is returned when a Set has no registry for a server.
	ErrUnknownServer = errors.New("unknown server")

	// ErrWrongServer means a connection was added to another server's registry.
	ErrWrongServer = errors.New("connection belongs to another server")
)

// Registry is the set of open connections of one server, keyed by id.
type Registry struct {
	server models.ServerID

	mu    sync.RWMutex
	conns map[string]models.Connection
}

// New creates an empty registry for server.
func New(server models.ServerID) *Registry {
	return &Registry{
		server: server,
		conns:  make(map[string]models.Connection),
	}
}

// Server returns the server this registry belongs to.
func (r *Registry) Server() models.ServerID { return r.server }

// Add inserts c. It fails with ErrDuplicateID if c.ID is already present.
func (r *Registry) Add(c models.Connection) error {
	if c.Server != r.server {
		return fmt.Errorf("%w: %s into %s", ErrWrongServer, c.Server, r.server)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[c.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, c.ID)
	}
	r.conns[c.ID] = c
	return nil
}

// Remove deletes the connection with the given id and reports whether it was
// present. Removing an absent id is not an error: a close may race with
// shutdown cleanup.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[id]; !exists {
		return false
	}
	delete(r.conns, id)
	return true
}

// Count returns the number of open connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// List returns a copy of the open connections, oldest first.
func (r *Registry) List() []models.Connection {
	r.mu.RLock()
	out := make([]models.Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// Set holds one Registry per server. The mapping is fixed at construction,
// so the Set itself needs no lock.
type Set struct {
	regs map[models.ServerID]*Registry
}

// NewSet creates a registry for each of the given servers.
func NewSet(servers ...models.ServerID) *Set {
	s := &Set{regs: make(map[models.ServerID]*Registry, len(servers))}
	for _, id := range servers {
		s.regs[id] = New(id)
	}
	return s
}

// Get returns the registry of server.
func (s *Set) Get(server models.ServerID) (*Registry, error) {
	r, ok := s.regs[server]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownServer, server)
	}
	return r, nil
}

// Add inserts c into the registry of server.
func (s *Set) Add(server models.ServerID, c models.Connection) error {
	r, err := s.Get(server)
	if err != nil {
		return err
	}
	return r.Add(c)
}

// Remove deletes connID from the registry of server. Absent ids are a no-op.
func (s *Set) Remove(server models.ServerID, connID string) error {
	r, err := s.Get(server)
	if err != nil {
		return err
	}
	r.Remove(connID)
	return nil
}

// Count returns the open connections of server, or 0 for an unknown server.
func (s *Set) Count(server models.ServerID) int {
	r, ok := s.regs[server]
	if !ok {
		return 0
	}
	return r.Count()
}

// List returns the open connections of server, oldest first.
func (s *Set) List(server models.ServerID) ([]models.Connection, error) {
	r, err := s.Get(server)
	if err != nil {
		return nil, err
	}
	return r.List(), nil
}
