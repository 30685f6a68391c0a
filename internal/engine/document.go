package engine

import (
	"errors"
	"sync"

	"github.com/amfajardoo/project-code-editor/internal/protocol"
)

// Sync sub-protocol steps, carried inside a sync envelope.
const (
	// SyncStateRequest carries a state vector; the receiver answers with
	// the updates the sender is missing.
	SyncStateRequest = 0

	// SyncDiff is the answer to a state request: a merged update covering
	// the missing range.
	SyncDiff = 1

	// SyncUpdate is one incremental update.
	SyncUpdate = 2
)

// ErrUnknownSyncStep is returned for a sync message with an unrecognized
// step tag.
var ErrUnknownSyncStep = errors.New("engine: unknown sync step")

// Document is the relay's contract with the document engine. A document
// holds one mergeable state; applying an update re-emits the update to
// persist through the update handler, and a state request is answered with
// the diff the requester is missing.
//
// Implementations must be safe for use from a single goroutine at a time;
// the relay serializes all calls per room.
type Document interface {
	// HandleSyncMessage processes one sync payload. If the engine produces
	// a direct reply (a diff answering a state request), it is written to
	// reply and replied is true. Updates the engine decides to persist are
	// emitted through the update handler instead.
	HandleSyncMessage(msg []byte, reply *protocol.Encoder) (replied bool, err error)

	// ApplyUpdate applies one update blob and emits it.
	ApplyUpdate(update []byte) error

	// StateRequest encodes the engine's current state vector as a sync
	// payload, suitable for sending to a joining peer.
	StateRequest() []byte

	// OnUpdate registers the handler invoked for every persisted update.
	OnUpdate(fn func(update []byte))

	// Destroy releases the engine's state. The engine must not emit after
	// Destroy returns.
	Destroy()
}

// document is the in-memory engine: an append-only update log whose state
// vector is the log length. A peer's request carries how many updates it
// has seen; the diff is everything after that point.
type document struct {
	mu       sync.Mutex
	updates  [][]byte
	onUpdate func(update []byte)
}

// NewDocument creates an empty in-memory document engine.
func NewDocument() Document {
	return &document{}
}

func (d *document) OnUpdate(fn func(update []byte)) {
	d.mu.Lock()
	d.onUpdate = fn
	d.mu.Unlock()
}

func (d *document) StateRequest() []byte {
	d.mu.Lock()
	seen := uint64(len(d.updates))
	d.mu.Unlock()

	sv := protocol.NewEncoder()
	sv.WriteUvarint(seen)

	enc := protocol.NewEncoder()
	enc.WriteUvarint(SyncStateRequest)
	enc.WriteLenBytes(sv.Bytes())
	return enc.Bytes()
}

func (d *document) HandleSyncMessage(msg []byte, reply *protocol.Encoder) (bool, error) {
	dec := protocol.NewDecoder(msg)
	step, err := dec.ReadUvarint()
	if err != nil {
		return false, err
	}

	switch step {
	case SyncStateRequest:
		sv, err := dec.ReadLenBytes()
		if err != nil {
			return false, err
		}
		diff, err := d.diff(sv)
		if err != nil {
			return false, err
		}
		reply.WriteUvarint(SyncDiff)
		reply.WriteLenBytes(diff)
		return true, nil

	case SyncDiff:
		blob, err := dec.ReadLenBytes()
		if err != nil {
			return false, err
		}
		return false, d.applyDiff(blob)

	case SyncUpdate:
		update, err := dec.ReadLenBytes()
		if err != nil {
			return false, err
		}
		return false, d.ApplyUpdate(update)

	default:
		return false, ErrUnknownSyncStep
	}
}

func (d *document) ApplyUpdate(update []byte) error {
	d.mu.Lock()
	d.updates = append(d.updates, update)
	emit := d.onUpdate
	d.mu.Unlock()

	if emit != nil {
		emit(update)
	}
	return nil
}

// diff builds the merged update blob covering everything the peer has not
// seen: a count followed by each missing update, length-prefixed.
func (d *document) diff(stateVector []byte) ([]byte, error) {
	dec := protocol.NewDecoder(stateVector)
	seen, err := dec.ReadUvarint()
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	var missing [][]byte
	if seen < uint64(len(d.updates)) {
		missing = d.updates[seen:]
	}
	enc := protocol.NewEncoder()
	enc.WriteUvarint(uint64(len(missing)))
	for _, u := range missing {
		enc.WriteLenBytes(u)
	}
	d.mu.Unlock()

	return enc.Bytes(), nil
}

// applyDiff unpacks a merged update blob and applies each contained update.
func (d *document) applyDiff(blob []byte) error {
	dec := protocol.NewDecoder(blob)
	count, err := dec.ReadUvarint()
	if err != nil {
		return err
	}
	for i := uint64(0); i < count; i++ {
		update, err := dec.ReadLenBytes()
		if err != nil {
			return err
		}
		if err := d.ApplyUpdate(update); err != nil {
			return err
		}
	}
	return nil
}

func (d *document) Destroy() {
	d.mu.Lock()
	d.updates = nil
	d.onUpdate = nil
	d.mu.Unlock()
}
