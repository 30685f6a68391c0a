package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amfajardoo/project-code-editor/internal/engine"
	"github.com/amfajardoo/project-code-editor/internal/protocol"
)

// startRelay spins up a relay behind a real HTTP server and returns its
// ws:// base URL.
func startRelay(t *testing.T) (*Registry, string) {
	t.Helper()

	registry := NewRegistry(nil)
	handler := NewHandler(registry)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := handler.HandleConnection(w, r); err != nil {
			t.Logf("upgrade failed: %v", err)
		}
	}))
	t.Cleanup(srv.Close)

	return registry, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s failed: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return data
}

func TestIntegrationPresenceRelay(t *testing.T) {
	registry, base := startRelay(t)

	connA := dial(t, base+"/room-42")
	connB := dial(t, base+"/room-42")

	// Both clients receive the admission state request first.
	for _, conn := range []*websocket.Conn{connA, connB} {
		frame := readFrame(t, conn, time.Second)
		env, err := protocol.DecodeEnvelope(frame)
		if err != nil || env.Tag != protocol.MessageSync {
			t.Fatalf("expected admission sync envelope, got tag=%d err=%v", env.Tag, err)
		}
	}

	// Wait for both admissions to land before publishing.
	waitFor(t, time.Second, func() bool {
		stat, ok := registry.Stat("room-42")
		return ok && stat.Members == 2
	})

	delta := protocol.NewEncoder()
	delta.WriteUvarint(1)
	delta.WriteUvarint(7)
	delta.WriteUvarint(1)
	delta.WriteString(`{"user":{"name":"Ann"}}`)
	frame := protocol.EncodePresence(delta.Bytes())

	if err := connA.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// B sees client 7 appear.
	got := readFrame(t, connB, time.Second)
	env, err := protocol.DecodeEnvelope(got)
	if err != nil || env.Tag != protocol.MessagePresence {
		t.Fatalf("expected presence envelope, got tag=%d err=%v", env.Tag, err)
	}
	inner := protocol.NewDecoder(env.Payload)
	deltaBytes, err := inner.ReadLenBytes()
	if err != nil {
		t.Fatalf("bad presence payload: %v", err)
	}
	p := engine.NewPresence()
	defer p.Destroy()
	if err := p.ApplyUpdate(deltaBytes, "test"); err != nil {
		t.Fatalf("relayed delta failed to apply: %v", err)
	}
	if _, ok := p.States()[7]; !ok {
		t.Error("relayed delta does not carry client 7")
	}

	// A must not receive its own echo.
	connA.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := connA.ReadMessage(); err == nil {
		t.Error("originator received an echo of its own presence update")
	}
}

func TestIntegrationSyncRelayAndCatchUp(t *testing.T) {
	registry, base := startRelay(t)

	connA := dial(t, base+"/doc")
	readFrame(t, connA, time.Second) // admission state request

	// A publishes an update into an otherwise empty room.
	update := protocol.NewEncoder()
	update.WriteUvarint(engine.SyncUpdate)
	update.WriteLenBytes([]byte("edit-1"))
	if err := connA.WriteMessage(websocket.BinaryMessage, protocol.EncodeSync(update.Bytes())); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		stat, ok := registry.Stat("doc")
		return ok && stat.Members == 1
	})

	// B joins late and answers the admission state request to catch up.
	connB := dial(t, base+"/doc")
	readFrame(t, connB, time.Second) // admission state request

	sv := protocol.NewEncoder()
	sv.WriteUvarint(0)
	req := protocol.NewEncoder()
	req.WriteUvarint(engine.SyncStateRequest)
	req.WriteLenBytes(sv.Bytes())
	if err := connB.WriteMessage(websocket.BinaryMessage, protocol.EncodeSync(req.Bytes())); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	reply := readFrame(t, connB, time.Second)
	env, err := protocol.DecodeEnvelope(reply)
	if err != nil || env.Tag != protocol.MessageSync {
		t.Fatalf("expected sync reply, got tag=%d err=%v", env.Tag, err)
	}
	dec := protocol.NewDecoder(env.Payload)
	if step, _ := dec.ReadUvarint(); step != engine.SyncDiff {
		t.Fatalf("expected diff reply, got step %d", step)
	}
	diff, err := dec.ReadLenBytes()
	if err != nil {
		t.Fatalf("bad diff payload: %v", err)
	}
	inner := protocol.NewDecoder(diff)
	count, _ := inner.ReadUvarint()
	if count != 1 {
		t.Fatalf("expected 1 missing update, got %d", count)
	}
	missing, err := inner.ReadLenBytes()
	if err != nil || string(missing) != "edit-1" {
		t.Errorf("expected edit-1 in diff, got %q err=%v", missing, err)
	}
}

func TestIntegrationEmptyPathDefaultRoom(t *testing.T) {
	registry, base := startRelay(t)

	conn := dial(t, base+"/")
	readFrame(t, conn, time.Second)

	waitFor(t, time.Second, func() bool {
		stat, ok := registry.Stat(DefaultRoom)
		return ok && stat.Members == 1
	})
}

func TestIntegrationDisconnectRemovesRoom(t *testing.T) {
	registry, base := startRelay(t)

	conn := dial(t, base+"/ephemeral")
	readFrame(t, conn, time.Second)

	waitFor(t, time.Second, func() bool {
		_, ok := registry.Stat("ephemeral")
		return ok
	})

	conn.Close()

	waitFor(t, time.Second, func() bool {
		_, ok := registry.Stat("ephemeral")
		return !ok
	})
}

func TestIntegrationMalformedFrameKeepsConnection(t *testing.T) {
	_, base := startRelay(t)

	connA := dial(t, base+"/resilient")
	connB := dial(t, base+"/resilient")
	readFrame(t, connA, time.Second)
	readFrame(t, connB, time.Second)

	// Garbage, then a valid update: the connection must survive and the
	// valid frame must still be relayed.
	if err := connA.WriteMessage(websocket.BinaryMessage, []byte{0xFF, 0xFF, 0xFF}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	update := protocol.NewEncoder()
	update.WriteUvarint(engine.SyncUpdate)
	update.WriteLenBytes([]byte("still-alive"))
	if err := connA.WriteMessage(websocket.BinaryMessage, protocol.EncodeSync(update.Bytes())); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	frame := readFrame(t, connB, time.Second)
	env, err := protocol.DecodeEnvelope(frame)
	if err != nil || env.Tag != protocol.MessageSync {
		t.Fatalf("expected sync envelope after garbage, got tag=%d err=%v", env.Tag, err)
	}
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
