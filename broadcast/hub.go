// Package broadcast - Pushes detection results to websocket clients.
package broadcast

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/nvr-ai/go-yolo/logging"
	"github.com/nvr-ai/go-yolo/models/postprocess"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const writeWait = 5 * time.Second

// Box is one detection as sent to clients, in normalised coordinates.
type Box struct {
	Label      string  `json:"label"`
	Class      int     `json:"class"`
	Confidence float32 `json:"confidence"`
	X1         float32 `json:"x1"`
	Y1         float32 `json:"y1"`
	X2         float32 `json:"x2"`
	Y2         float32 `json:"y2"`
}

// Message is the JSON document published for every frame.
type Message struct {
	FrameID    string    `json:"frame_id"`
	Status     string    `json:"status"`
	Boxes      []Box     `json:"boxes"`
	DurationMS float64   `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewMessage converts a Result into its wire form.
func NewMessage(frameID string, result postprocess.Result) Message {
	boxes := make([]Box, len(result.Boxes))
	for i, b := range result.Boxes {
		boxes[i] = Box{
			Label:      b.Label,
			Class:      b.Class,
			Confidence: b.Confidence,
			X1:         b.X1,
			Y1:         b.Y1,
			X2:         b.X2,
			Y2:         b.Y2,
		}
	}
	return Message{
		FrameID:    frameID,
		Status:     result.Status.String(),
		Boxes:      boxes,
		DurationMS: float64(result.Duration.Microseconds()) / 1000,
		Timestamp:  time.Now().UTC(),
	}
}

// Hub fans messages out to every connected client.
//
// Run owns the client set; everything else talks to it over channels.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewHub creates a hub buffering up to backlog undelivered messages.
func NewHub(backlog int) *Hub {
	if backlog < 1 {
		backlog = 1
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, backlog),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run serves the hub until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			logging.Info(logging.Fields{"clients": count, "remote": client.RemoteAddr().String()},
				"[broadcast.Hub] client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			count := len(h.clients)
			h.mutex.Unlock()
			logging.Info(logging.Fields{"clients": count}, "[broadcast.Hub] client disconnected")

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					logging.Warn(logging.Fields{"error": err.Error()}, "[broadcast.Hub] failed to send message")
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		client.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
		client.Close()
		delete(h.clients, client)
	}
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects. Anything the client sends is discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn(logging.Fields{"error": err.Error()}, "[broadcast.Hub] upgrade failed")
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Publish queues a result for every client.
//
// Only processed frames are sent; not-ready and invalid results carry no
// signal and are skipped. Publish never blocks: when the backlog is full or
// the hub has stopped the message is dropped. It returns whether the message
// was queued.
func (h *Hub) Publish(frameID string, result postprocess.Result) bool {
	if !Publishable(result) {
		return false
	}
	payload, err := json.Marshal(NewMessage(frameID, result))
	if err != nil {
		logging.Error(logging.Fields{"error": err.Error()}, "[broadcast.Hub] failed to encode message")
		return false
	}

	select {
	case <-h.done:
		return false
	default:
	}

	select {
	case h.broadcast <- payload:
		return true
	default:
		logging.WithFrame(frameID).Warn("[broadcast.Hub] backlog full, message dropped")
		return false
	}
}

// Publishable reports whether a result describes a processed frame.
func Publishable(result postprocess.Result) bool {
	return result.Status == postprocess.StatusEmpty || result.Status == postprocess.StatusDetected
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
