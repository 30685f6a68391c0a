package engine

import (
	"sync"

	"github.com/amfajardoo/project-code-editor/internal/protocol"
)

// nullState marks a removed entry inside a presence delta.
const nullState = "null"

// PresenceEvent describes one change to the presence table.
type PresenceEvent struct {
	Added   []uint64
	Updated []uint64
	Removed []uint64
}

// Empty reports whether the event carries no changes.
func (ev PresenceEvent) Empty() bool {
	return len(ev.Added) == 0 && len(ev.Updated) == 0 && len(ev.Removed) == 0
}

// Changed returns every client id the event touches, in added, updated,
// removed order.
func (ev PresenceEvent) Changed() []uint64 {
	ids := make([]uint64, 0, len(ev.Added)+len(ev.Updated)+len(ev.Removed))
	ids = append(ids, ev.Added...)
	ids = append(ids, ev.Updated...)
	ids = append(ids, ev.Removed...)
	return ids
}

// Presence is the relay's contract with the presence engine. The engine is
// authoritative for the table: it assigns nothing itself but tracks, per
// client id, a clock, an opaque state document and the connection the entry
// arrived on.
//
// Implementations must be safe for use from a single goroutine at a time;
// the relay serializes all calls per room.
type Presence interface {
	// ApplyUpdate applies an encoded delta, recording origin as the owner
	// of every entry it carries. Changes are reported through the change
	// handler.
	ApplyUpdate(delta []byte, origin any) error

	// States returns a snapshot of the live table, client id to state.
	States() map[uint64][]byte

	// ClientIDs returns the ids of all live entries.
	ClientIDs() []uint64

	// IDsForOrigin returns the ids of the live entries owned by origin.
	IDsForOrigin(origin any) []uint64

	// RemoveStates removes the given entries and reports them through the
	// change handler with origin attached.
	RemoveStates(ids []uint64, origin any)

	// EncodeUpdate encodes a delta covering the given ids, removed ones
	// included.
	EncodeUpdate(ids []uint64) []byte

	// OnChange registers the handler invoked after every table change.
	OnChange(fn func(ev PresenceEvent, origin any))

	// Destroy releases the table. The engine must not report changes after
	// Destroy returns.
	Destroy()
}

type presenceEntry struct {
	state  []byte
	origin any
}

// presence is the in-memory engine. Entries carry a per-client clock; a
// delta entry is accepted when its clock is newer than the known one, with
// removals winning clock ties so a leave always lands.
type presence struct {
	mu       sync.Mutex
	states   map[uint64]*presenceEntry
	clocks   map[uint64]uint64
	onChange func(ev PresenceEvent, origin any)
}

// NewPresence creates an empty in-memory presence engine.
func NewPresence() Presence {
	return &presence{
		states: make(map[uint64]*presenceEntry),
		clocks: make(map[uint64]uint64),
	}
}

func (p *presence) OnChange(fn func(ev PresenceEvent, origin any)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

func (p *presence) ApplyUpdate(delta []byte, origin any) error {
	dec := protocol.NewDecoder(delta)
	count, err := dec.ReadUvarint()
	if err != nil {
		return err
	}

	var ev PresenceEvent
	p.mu.Lock()
	for i := uint64(0); i < count; i++ {
		clientID, err := dec.ReadUvarint()
		if err != nil {
			p.mu.Unlock()
			return err
		}
		clock, err := dec.ReadUvarint()
		if err != nil {
			p.mu.Unlock()
			return err
		}
		state, err := dec.ReadString()
		if err != nil {
			p.mu.Unlock()
			return err
		}

		prevClock, known := p.clocks[clientID]
		removal := state == nullState
		// Newer clocks always win; a removal also wins a clock tie.
		if known && (clock < prevClock || (clock == prevClock && !removal)) {
			continue
		}

		p.clocks[clientID] = clock
		_, live := p.states[clientID]
		if removal {
			if live {
				delete(p.states, clientID)
				ev.Removed = append(ev.Removed, clientID)
			}
			continue
		}
		p.states[clientID] = &presenceEntry{state: []byte(state), origin: origin}
		if live {
			ev.Updated = append(ev.Updated, clientID)
		} else {
			ev.Added = append(ev.Added, clientID)
		}
	}
	fn := p.onChange
	p.mu.Unlock()

	if fn != nil && !ev.Empty() {
		fn(ev, origin)
	}
	return nil
}

func (p *presence) States() map[uint64][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[uint64][]byte, len(p.states))
	for id, e := range p.states {
		out[id] = e.state
	}
	return out
}

func (p *presence) ClientIDs() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]uint64, 0, len(p.states))
	for id := range p.states {
		ids = append(ids, id)
	}
	return ids
}

func (p *presence) IDsForOrigin(origin any) []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ids []uint64
	for id, e := range p.states {
		if e.origin == origin {
			ids = append(ids, id)
		}
	}
	return ids
}

func (p *presence) RemoveStates(ids []uint64, origin any) {
	var ev PresenceEvent
	p.mu.Lock()
	for _, id := range ids {
		if _, live := p.states[id]; !live {
			continue
		}
		delete(p.states, id)
		p.clocks[id]++
		ev.Removed = append(ev.Removed, id)
	}
	fn := p.onChange
	p.mu.Unlock()

	if fn != nil && !ev.Empty() {
		fn(ev, origin)
	}
}

func (p *presence) EncodeUpdate(ids []uint64) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	enc := protocol.NewEncoder()
	enc.WriteUvarint(uint64(len(ids)))
	for _, id := range ids {
		enc.WriteUvarint(id)
		enc.WriteUvarint(p.clocks[id])
		if e, live := p.states[id]; live {
			enc.WriteString(string(e.state))
		} else {
			enc.WriteString(nullState)
		}
	}
	return enc.Bytes()
}

func (p *presence) Destroy() {
	p.mu.Lock()
	p.states = make(map[uint64]*presenceEntry)
	p.clocks = make(map[uint64]uint64)
	p.onChange = nil
	p.mu.Unlock()
}
