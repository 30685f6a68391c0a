package relay

import (
	"sync"

	"go.uber.org/zap"

	"github.com/amfajardoo/project-code-editor/internal/engine"
	"github.com/amfajardoo/project-code-editor/internal/logger"
	"github.com/amfajardoo/project-code-editor/internal/metrics"
	"github.com/amfajardoo/project-code-editor/internal/protocol"
)

// Room is one named collaboration session: a document engine, a presence
// engine and the set of member connections. All mutations on a room are
// serialized by its mutex; engine callbacks fire inside that boundary and
// feed the broadcast path directly.
type Room struct {
	name     string
	registry *Registry
	doc      engine.Document
	presence engine.Presence

	mu      sync.Mutex
	members map[*Client]struct{}
	closed  bool

	// origin is the connection whose dispatch is currently executing.
	// Engine callbacks use it to keep broadcasts from echoing back.
	origin *Client
}

func newRoom(name string, registry *Registry, doc engine.Document, presence engine.Presence) *Room {
	r := &Room{
		name:     name,
		registry: registry,
		doc:      doc,
		presence: presence,
		members:  make(map[*Client]struct{}),
	}
	doc.OnUpdate(r.handleDocUpdate)
	presence.OnChange(r.handlePresenceChange)
	return r
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.name
}

// MemberCount returns the number of admitted connections.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Closed reports whether the room has been torn down. A closed room admits
// nobody; callers must re-resolve through the registry.
func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Admit registers c as a member and sends it, in order, a sync envelope
// carrying the document's state request and, if the presence table is
// non-empty, one presence envelope carrying the full table. Returns false
// if the room has already been torn down.
func (r *Room) Admit(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	r.members[c] = struct{}{}
	metrics.ConnectionsActive.Inc()

	c.Send(protocol.EncodeSync(r.doc.StateRequest()))
	if ids := r.presence.ClientIDs(); len(ids) > 0 {
		c.Send(protocol.EncodePresence(r.presence.EncodeUpdate(ids)))
	}

	logger.Debug("client admitted",
		zap.String("room", r.name),
		zap.String("clientId", c.ID()),
		zap.Int("members", len(r.members)))
	return true
}

// Dispatch routes one inbound frame from c. Malformed frames and engine
// rejections are dropped without closing the connection; unknown envelope
// tags are ignored for forward compatibility.
func (r *Room) Dispatch(c *Client, frame []byte) {
	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		metrics.FramesDropped.WithLabelValues("decode").Inc()
		logger.Debug("dropping malformed frame",
			zap.String("room", r.name),
			zap.String("clientId", c.ID()),
			zap.Error(err))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[c]; !ok {
		return
	}

	prev := r.origin
	r.origin = c
	defer func() { r.origin = prev }()

	switch env.Tag {
	case protocol.MessageSync:
		reply := protocol.NewEncoder()
		reply.WriteUvarint(protocol.MessageSync)
		replied, err := r.doc.HandleSyncMessage(env.Payload, reply)
		if err != nil {
			metrics.FramesDropped.WithLabelValues("engine").Inc()
			logger.Debug("document engine rejected sync message",
				zap.String("room", r.name),
				zap.String("clientId", c.ID()),
				zap.Error(err))
			return
		}
		if replied {
			// Direct replies go to the sender only, never broadcast.
			c.Send(reply.Bytes())
		}
		metrics.EnvelopesRelayed.WithLabelValues("sync").Inc()

	case protocol.MessagePresence:
		dec := protocol.NewDecoder(env.Payload)
		delta, err := dec.ReadLenBytes()
		if err != nil {
			metrics.FramesDropped.WithLabelValues("decode").Inc()
			return
		}
		if err := r.presence.ApplyUpdate(delta, c); err != nil {
			metrics.FramesDropped.WithLabelValues("engine").Inc()
			logger.Debug("presence engine rejected update",
				zap.String("room", r.name),
				zap.String("clientId", c.ID()),
				zap.Error(err))
			return
		}
		metrics.EnvelopesRelayed.WithLabelValues("presence").Inc()

	default:
		metrics.FramesDropped.WithLabelValues("unknown_tag").Inc()
	}
}

// Evict removes c from the room, clears its presence entries and, if it was
// the last member, tears the room down and unregisters it. Cleanup runs at
// most once per connection regardless of how many transport signals fire.
func (r *Room) Evict(c *Client) {
	r.mu.Lock()
	if _, ok := r.members[c]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.members, c)
	metrics.ConnectionsActive.Dec()

	if ids := r.presence.IDsForOrigin(c); len(ids) > 0 {
		// Fires a removal notice to the remaining members.
		r.presence.RemoveStates(ids, c)
	}

	empty := len(r.members) == 0
	if empty {
		r.closed = true
	}
	memberCount := len(r.members)
	r.mu.Unlock()

	c.Close()
	logger.Debug("client evicted",
		zap.String("room", r.name),
		zap.String("clientId", c.ID()),
		zap.Int("members", memberCount))

	if empty {
		r.registry.remove(r.name, r)
		r.doc.Destroy()
		r.presence.Destroy()
		logger.Info("room destroyed", zap.String("room", r.name))
	}
}

// handleDocUpdate broadcasts a persisted document update to every member
// except the origin. Runs inside the room's dispatch boundary.
func (r *Room) handleDocUpdate(update []byte) {
	enc := protocol.NewEncoder()
	enc.WriteUvarint(protocol.MessageSync)
	enc.WriteUvarint(engine.SyncUpdate)
	enc.WriteLenBytes(update)
	r.broadcastLocked(enc.Bytes(), r.origin)
}

// handlePresenceChange broadcasts a presence delta covering the changed
// entries to every member except the origin. Runs inside the room's
// dispatch boundary.
func (r *Room) handlePresenceChange(ev engine.PresenceEvent, origin any) {
	delta := r.presence.EncodeUpdate(ev.Changed())
	exclude, _ := origin.(*Client)
	r.broadcastLocked(protocol.EncodePresence(delta), exclude)
}

// broadcastLocked writes data to every member except exclude. Callers must
// hold r.mu. Send never blocks; a laggard is closed, not awaited.
func (r *Room) broadcastLocked(data []byte, exclude *Client) {
	for m := range r.members {
		if m == exclude {
			continue
		}
		m.Send(data)
	}
}

// shutdown closes every member connection. Used on process shutdown; the
// read pumps observe the close and evict as usual.
func (r *Room) shutdown() {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.members))
	for m := range r.members {
		clients = append(clients, m)
	}
	r.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}
