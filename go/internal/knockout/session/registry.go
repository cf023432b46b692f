package session

import (
	"slices"
	"strings"
	"sync"
)

// Registry holds the live rooms of a process
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
	}
}

func (r *Registry) Get(id string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	return room, ok
}

// GetOrCreate returns the room for id, building it with create if absent.
// The bool reports whether the room was created by this call.
func (r *Registry) GetOrCreate(id string, create func() *Room) (*Room, bool) {
	r.mu.RLock()
	room, ok := r.rooms[id]
	r.mu.RUnlock()
	if ok {
		return room, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock.
	if room, ok := r.rooms[id]; ok {
		return room, false
	}

	room = create()
	r.rooms[id] = room
	return room, true
}

// Remove drops a room from the registry without closing it
func (r *Registry) Remove(id string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if ok {
		delete(r.rooms, id)
	}
	return room, ok
}

// List returns the rooms ordered by ID
func (r *Registry) List() []*Room {
	r.mu.RLock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.RUnlock()

	slices.SortFunc(rooms, func(a, b *Room) int {
		return strings.Compare(a.ID(), b.ID())
	})
	return rooms
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Close closes and forgets every room
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, room := range r.rooms {
		room.Close()
		delete(r.rooms, id)
	}
}
