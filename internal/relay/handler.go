package relay

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/amfajardoo/project-code-editor/internal/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1 << 20
)

// DefaultRoom is the room name used when the request path is empty.
const DefaultRoom = "default"

// RoomName derives the room name from a request path: one leading path
// separator is stripped, an empty remainder maps to DefaultRoom, anything
// else is used verbatim. Names are case-sensitive and not validated.
func RoomName(path string) string {
	name := strings.TrimPrefix(path, "/")
	if name == "" {
		return DefaultRoom
	}
	return name
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking in production
		return true
	},
}

// Handler accepts WebSocket connections and binds each one to the room
// named by its request path.
type Handler struct {
	registry *Registry
}

// NewHandler creates a handler over the given registry.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// Registry returns the room registry behind this handler.
func (h *Handler) Registry() *Registry {
	return h.registry
}

// HandleConnection upgrades the HTTP request, admits the connection into
// its room and starts the read and write pumps.
func (h *Handler) HandleConnection(w http.ResponseWriter, req *http.Request) error {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return err
	}

	name := RoomName(req.URL.Path)
	client := NewClient(conn, name)
	room := h.admit(client, name)

	go h.writePump(client)
	go h.readPump(client, room)
	return nil
}

// admit resolves the room and registers the client. A room that closed
// between resolution and admission is re-resolved; the registry hands out
// a fresh instance once the closed one unregisters.
func (h *Handler) admit(c *Client, name string) *Room {
	for {
		room := h.registry.GetOrCreate(name)
		if room.Admit(c) {
			return room
		}
	}
}

// readPump pumps frames from the WebSocket connection into the room. Frame
// handling errors never end the loop; only transport close or error does,
// and either way the client is evicted exactly once.
func (h *Handler) readPump(client *Client, room *Room) {
	defer func() {
		room.Evict(client)
		client.Conn().Close()
	}()

	client.Conn().SetReadLimit(maxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error",
					zap.String("room", room.Name()),
					zap.String("clientId", client.ID()),
					zap.Error(err))
			}
			break
		}
		room.Dispatch(client, frame)
	}
}

// writePump pumps queued messages to the WebSocket connection and keeps the
// peer alive with periodic pings. All writes to a connection go through
// here, so frames are never interleaved.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The room closed the queue.
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn().WriteMessage(websocket.BinaryMessage, message); err != nil {
				return
			}

			// Drain what queued up behind the first message.
			n := len(client.SendChan())
			for i := 0; i < n; i++ {
				queued := <-client.SendChan()
				client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.Conn().WriteMessage(websocket.BinaryMessage, queued); err != nil {
					return
				}
			}
		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
