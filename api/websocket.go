package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/seenimoa/finnews/internal/store"
	"github.com/seenimoa/finnews/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS origins are enforced by the router
	},
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Message types sent to clients.
const (
	MsgResult   = "result"
	MsgProgress = "progress"
	MsgRun      = "run"
	MsgPong     = "pong"
)

// WSMessage is a message sent over WebSocket connections.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Progress is the payload of a progress message.
type Progress struct {
	RunID       string           `json:"run_id,omitempty"`
	Processed   int              `json:"processed"`
	Total       int              `json:"total"`
	Complete    bool             `json:"complete"`
	LastUpdated models.LocalTime `json:"last_updated"`
}

// ============================================================
// WebSocket Hub
// ============================================================

// WSHub manages WebSocket connections and message broadcasting.
type WSHub struct {
	mu         sync.RWMutex
	clients    map[*WSClient]bool
	broadcast  chan WSMessage
	register   chan *WSClient
	unregister chan *WSClient
	done       chan struct{} // closed when Run returns
	logger     arbor.ILogger
}

// WSClient represents a single WebSocket connection.
type WSClient struct {
	hub  *WSHub
	send chan WSMessage

	mu     sync.Mutex
	closed bool
}

// trySend queues msg without blocking. It reports false when the buffer is
// full or the client has been closed.
func (c *WSClient) trySend(msg WSMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close closes the send channel once. Every close goes through here so a
// late trySend from the read pump never hits a closed channel.
func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub(logger arbor.ILogger) *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan WSMessage, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub event loop. It returns when ctx is done, after
// closing every client.
func (h *WSHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.trySend(msg) {
					// Slow client; disconnect
					delete(h.clients, client)
					client.close()
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected WebSocket clients.
func (h *WSHub) Broadcast(msg WSMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn().Str("type", msg.Type).Msg("api: broadcast queue full, message dropped")
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub. A client registered after the hub
// stopped is closed at once.
func (h *WSHub) Register(client *WSClient) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

// Unregister removes a client from the hub.
func (h *WSHub) Unregister(client *WSClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ============================================================
// Connections
// ============================================================

// handleWebSocket upgrades HTTP connections to WebSocket. A new client
// first receives the current progress, then every broadcast.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("api: websocket upgrade failed")
		return
	}

	client := &WSClient{
		hub:  s.wsHub,
		send: make(chan WSMessage, 256),
	}
	if doc, err := s.document(); err == nil {
		client.trySend(WSMessage{Type: MsgProgress, Data: progressOf(doc)})
	}

	s.wsHub.Register(client)

	// Start reader and writer goroutines
	go wsWritePump(conn, client)
	go wsReadPump(conn, client, s.logger)
}

// wsReadPump reads client messages until the connection closes. Only ping
// is answered.
func wsReadPump(conn *websocket.Conn, client *WSClient, logger arbor.ILogger) {
	defer func() {
		client.hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("api: websocket read error")
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" && !client.trySend(WSMessage{Type: MsgPong}) {
			logger.Debug().Msg("api: pong dropped, client closed or backlogged")
		}
	}
}

// wsWritePump pumps messages from the hub to the WebSocket connection.
func wsWritePump(conn *websocket.Conn, client *WSClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ============================================================
// Document watcher
// ============================================================

// docWatcher tracks how much of the document has been broadcast.
type docWatcher struct {
	path  string
	run   string // identity of the run last seen
	count int
}

// poll reads the document and returns the messages describing what changed
// since the previous poll. A new run resets the cursor.
func (dw *docWatcher) poll() ([]WSMessage, *models.Document, error) {
	doc, err := store.ReadDocument(dw.path)
	if err != nil {
		return nil, nil, err
	}

	var msgs []WSMessage
	run := doc.Metadata.RunID + "@" + doc.Metadata.GeneratedAt.Format(models.LocalTimeLayout)
	if run != dw.run {
		if dw.run != "" {
			msgs = append(msgs, WSMessage{Type: MsgRun, Data: doc.Metadata})
		}
		dw.run = run
		dw.count = 0
	}
	if len(doc.Results) < dw.count {
		dw.count = 0
	}
	if len(doc.Results) == dw.count {
		return msgs, doc, nil
	}

	for _, r := range doc.Results[dw.count:] {
		msgs = append(msgs, WSMessage{Type: MsgResult, Data: r})
	}
	dw.count = len(doc.Results)
	msgs = append(msgs, WSMessage{Type: MsgProgress, Data: progressOf(doc)})
	return msgs, doc, nil
}

// watchDocument polls the document every poll interval and broadcasts new
// results until ctx is done. Results present at startup are not replayed.
func (s *Server) watchDocument(ctx context.Context) {
	interval := s.cfg.API.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	dw := &docWatcher{path: s.cfg.Data.OutputFile}
	if _, _, err := dw.poll(); err != nil {
		s.logger.Debug().Err(err).Str("path", dw.path).Msg("api: document not readable yet, waiting")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msgs, doc, err := dw.poll()
			if err != nil {
				s.logger.Debug().Err(err).Str("path", dw.path).Msg("api: document poll failed")
				s.docs.Invalidate(documentKey)
				continue
			}
			if len(msgs) > 0 {
				s.docs.Set(documentKey, doc)
			}
			for _, m := range msgs {
				s.wsHub.Broadcast(m)
			}
		}
	}
}

func progressOf(doc *models.Document) Progress {
	return Progress{
		RunID:       doc.Metadata.RunID,
		Processed:   len(doc.Results),
		Total:       doc.Metadata.ArticleCount,
		Complete:    doc.Complete(),
		LastUpdated: doc.Metadata.LastUpdated,
	}
}
