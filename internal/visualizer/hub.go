package visualizer

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lukasbauer/vai0/internal/voice"
)

const (
	clientBuffer = 64
	writeWait    = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the wire form of a loop event.
type Message struct {
	Type       string `json:"type"` // "state", "amplitude", "turn_completed", "turn_failed"
	State      string `json:"state,omitempty"`
	Source     string `json:"source,omitempty"`
	Level      int    `json:"level"`
	TurnID     string `json:"turn_id,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Reply      string `json:"reply,omitempty"`
	Stage      string `json:"stage,omitempty"`
	Error      string `json:"error,omitempty"`
	Time       int64  `json:"ts"`
}

func messageFor(ev voice.Event) (Message, bool) {
	switch e := ev.(type) {
	case voice.AmplitudeUpdate:
		return Message{Type: "amplitude", Source: string(e.Source), Level: e.Level, Time: e.At.UnixMilli()}, true
	case voice.StateChanged:
		return Message{Type: "state", State: e.To.String(), Time: e.At.UnixMilli()}, true
	case voice.TurnCompleted:
		return Message{
			Type:       "turn_completed",
			TurnID:     e.Turn.ID,
			Transcript: e.Turn.Transcript.Text,
			Reply:      e.Turn.Reply.Text,
			Time:       e.Turn.Finished.UnixMilli(),
		}, true
	case voice.TurnFailed:
		msg := Message{Type: "turn_failed", TurnID: e.TurnID, Stage: e.Stage.String(), Time: e.At.UnixMilli()}
		if e.Err != nil {
			msg.Error = e.Err.Error()
		}
		return msg, true
	default:
		return Message{}, false
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// Hub fans loop events out to connected pages. A client that cannot keep
// up is disconnected rather than slowing the others down. Once draining,
// new connections are refused.
//
// The mu mutex makes the draining check and wg.Add atomic in add().
type Hub struct {
	logger *zap.Logger

	mu       sync.Mutex
	clients  map[*client]struct{}
	draining bool
	wg       sync.WaitGroup
	count    atomic.Int64

	// last state and failure, replayed to new clients
	state   Message
	lastErr *Message
}

// NewHub creates a Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
		state:   Message{Type: "state", State: voice.Idle.String()},
	}
}

// Run consumes events until ctx is done or events is closed, then drains.
func (h *Hub) Run(ctx context.Context, events <-chan voice.Event) {
	defer h.Drain()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if msg, ok := messageFor(ev); ok {
				h.Broadcast(msg)
			}
		}
	}
}

// Broadcast sends msg to every client.
func (h *Hub) Broadcast(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("visualizer: marshal failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch msg.Type {
	case "state":
		h.state = msg
	case "turn_failed":
		m := msg
		h.lastErr = &m
	case "turn_completed":
		h.lastErr = nil
	}

	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.logger.Debug("visualizer: dropping slow client")
			h.removeLocked(c)
		}
	}
}

// ActiveCount returns the number of connected clients.
func (h *Hub) ActiveCount() int64 {
	return h.count.Load()
}

// Drain disconnects every client, refuses new ones and waits for the
// writers to exit.
func (h *Hub) Drain() {
	h.mu.Lock()
	h.draining = true
	for c := range h.clients {
		h.removeLocked(c)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// ServeWS upgrades the request and streams events until the page goes away.
// Anything the page sends is discarded.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("visualizer: upgrade failed", zap.Error(err))
		return
	}

	c, ok := h.add(conn)
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) add(conn *websocket.Conn) (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.draining {
		return nil, false
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	for _, msg := range h.snapshotLocked() {
		if b, err := json.Marshal(msg); err == nil {
			c.send <- b
		}
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	h.count.Add(1)
	return c, true
}

func (h *Hub) snapshotLocked() []Message {
	out := []Message{h.state}
	if h.lastErr != nil {
		out = append(out, *h.lastErr)
	}
	return out
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.count.Add(-1)
	c.once.Do(func() { close(c.send) })
}

func (h *Hub) writePump(c *client) {
	defer h.wg.Done()
	defer c.conn.Close()

	for b := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			h.remove(c)
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("visualizer: read error", zap.Error(err))
			}
			break
		}
	}
	h.remove(c)
}
