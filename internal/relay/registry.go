package relay

import (
	"sync"

	"github.com/amfajardoo/project-code-editor/internal/engine"
	"github.com/amfajardoo/project-code-editor/internal/metrics"
)

// EngineFactory produces the engine pair for a freshly created room.
type EngineFactory func(roomName string) (engine.Document, engine.Presence)

// Registry maps room names to live rooms. Rooms are created lazily on
// first use and removed when their last member leaves; outside of those
// transitions the registry never holds an empty room.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	engines EngineFactory
}

// NewRegistry creates a registry. A nil factory means the in-memory
// engines.
func NewRegistry(factory EngineFactory) *Registry {
	if factory == nil {
		factory = func(string) (engine.Document, engine.Presence) {
			return engine.NewDocument(), engine.NewPresence()
		}
	}
	return &Registry{
		rooms:   make(map[string]*Room),
		engines: factory,
	}
}

// GetOrCreate returns the room for name, constructing one with fresh
// engines if none exists. Creation is serialized under the registry lock,
// so concurrent calls for the same name converge on a single instance. A
// room caught mid-teardown is replaced rather than returned; the pending
// removal of the old instance compares identity and leaves the new one
// alone.
func (m *Registry) GetOrCreate(name string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	if room, ok := m.rooms[name]; ok && !room.Closed() {
		return room
	}

	doc, presence := m.engines(name)
	room := newRoom(name, m, doc, presence)
	m.rooms[name] = room
	metrics.RoomsActive.Set(float64(len(m.rooms)))
	return room
}

// Get returns the room for name, or nil if none exists.
func (m *Registry) Get(name string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[name]
}

// remove deletes the registry entry for name if it still points at room.
// Called by a room after its last member left and it marked itself closed.
func (m *Registry) remove(name string, room *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rooms[name] == room {
		delete(m.rooms, name)
		metrics.RoomsActive.Set(float64(len(m.rooms)))
	}
}

// RoomStat is a point-in-time view of one room.
type RoomStat struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// Stats returns a snapshot of all live rooms.
func (m *Registry) Stats() []RoomStat {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mu.Unlock()

	stats := make([]RoomStat, 0, len(rooms))
	for _, room := range rooms {
		stats = append(stats, RoomStat{Name: room.Name(), Members: room.MemberCount()})
	}
	return stats
}

// Stat returns the stats for one room.
func (m *Registry) Stat(name string) (RoomStat, bool) {
	room := m.Get(name)
	if room == nil {
		return RoomStat{}, false
	}
	return RoomStat{Name: room.Name(), Members: room.MemberCount()}, true
}

// Close shuts down every room's connections. Eviction and room teardown
// follow through the read pumps as the closes propagate.
func (m *Registry) Close() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mu.Unlock()

	for _, room := range rooms {
		room.shutdown()
	}
}
