// omp-launcher/api/websocket.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"omp-launcher/config"
	"omp-launcher/logs"
	"omp-launcher/provision"
	"omp-launcher/utils"
)

var (
	logger   = logs.L("api")
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
)

// ServerMessage is one event pushed to every open launcher window.
type ServerMessage struct {
	Type    string      `json:"type"`
	Content interface{} `json:"content,omitempty"`
	Time    time.Time   `json:"time"`
}

type StageEvent struct {
	Stage provision.Stage `json:"stage"`
	Task  string          `json:"task"`
}

type ProgressEvent struct {
	provision.Progress
	Text string `json:"text"`
}

type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

var _ provision.Observer = (*Hub)(nil)

// Hub fans launcher events out to the connected windows. It implements
// provision.Observer so a run can report straight into it.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex

	// Progress is coalesced: only the latest unsent update is kept.
	progressMu    sync.Mutex
	progress      []byte
	progressReady chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),

		progressReady: make(chan struct{}, 1),
	}
}

// Run serves the hub until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			logger.Info("window connected", "client", client.id)
		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				logger.Info("window disconnected", "client", client.id)
			}
			h.mutex.Unlock()
		case message := <-h.broadcast:
			h.deliver(message)
		case <-h.progressReady:
			if message := h.takeProgress(); message != nil {
				h.deliver(message)
			}
		}
	}
}

func (h *Hub) deliver(message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

func (h *Hub) takeProgress() []byte {
	h.progressMu.Lock()
	defer h.progressMu.Unlock()
	message := h.progress
	h.progress = nil
	return message
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func encodeEvent(msgType string, content interface{}) ([]byte, error) {
	messageBytes, err := json.Marshal(ServerMessage{Type: msgType, Content: content, Time: time.Now()})
	if err != nil {
		logger.Error("encode event", "type", msgType, "error", err)
	}
	return messageBytes, err
}

// Publish queues an event for every window. It never blocks the caller; when
// the queue is full the event is dropped. Progress updates never take a slot
// in the queue, so it only fills with stage, task and settings events.
func (h *Hub) Publish(msgType string, content interface{}) {
	messageBytes, err := encodeEvent(msgType, content)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- messageBytes:
	default:
		logger.Warn("event queue full, dropping event", "type", msgType)
	}
}

func (h *Hub) StageChanged(stage provision.Stage, task string) {
	msgType := "stage"
	switch stage {
	case provision.Complete:
		msgType = "ready"
	case provision.Failed:
		msgType = "failed"
	}
	// A stage change supersedes any progress of the previous stage.
	h.takeProgress()
	h.Publish(msgType, StageEvent{Stage: stage, Task: task})
}

func (h *Hub) TaskChanged(task string) {
	h.Publish("task", task)
}

func (h *Hub) ProgressChanged(p provision.Progress) {
	messageBytes, err := encodeEvent("progress", ProgressEvent{
		Progress: p,
		Text:     utils.FormatProgress(p.BytesReceived, p.BytesTotal, p.Percent),
	})
	if err != nil {
		return
	}
	h.progressMu.Lock()
	h.progress = messageBytes
	h.progressMu.Unlock()
	select {
	case h.progressReady <- struct{}{}:
	default:
	}
}

// SettingsChanged forwards a settings change so windows rehydrate their copy.
func (h *Hub) SettingsChanged(c config.Change) {
	h.Publish("settings", c)
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("event socket read failed", "client", c.id, "error", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logger.Warn("event socket write failed", "client", c.id, "error", err)
			return
		}
	}
}

// HandleEventsWebSocket streams launcher events to a window.
func (s *Server) HandleEventsWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("event socket upgrade failed", "error", err)
		return
	}
	client := &Client{
		id:   uuid.NewString(),
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	// Late joiners get the current state right away.
	if msg, err := json.Marshal(ServerMessage{Type: "status", Content: s.prov.Status(), Time: time.Now()}); err == nil {
		client.send <- msg
	}

	select {
	case client.hub.register <- client:
	case <-client.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// HandleWebSocket is held open by the main window; when it drops the launcher exits.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("main socket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	logger.Info("main window connected, the launcher exits when it closes")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			logger.Info("main window connection closed", "error", err)
			break
		}
	}
	s.TriggerShutdown()
}

// TriggerShutdown signals Done. Further calls are no-ops.
func (s *Server) TriggerShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Info("shutdown requested")
		close(s.shutdown)
	})
}

// Done is closed once a shutdown was requested.
func (s *Server) Done() <-chan struct{} {
	return s.shutdown
}
