package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"shooter-arena/internal/game"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	// clientSendBuffer is the per-client outbound queue. A spectator that
	// falls this many frames behind gets dropped instead of stalling the
	// broadcast.
	clientSendBuffer = 64

	// WSChannel names the broadcast channel in every frame
	WSChannel = "shooter"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// Use the centralized origin checker
		if IsAllowedOrigin(origin) {
			return true
		}

		// Log rejected origin for security monitoring
		log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
		RecordConnectionRejected("origin")
		return false
	},
}

// wsClient tracks a WebSocket connection with its source IP and
// outbound frame queue
type wsClient struct {
	conn *websocket.Conn
	ip   string
	send chan []byte
}

// wsEnvelope is the frame shape pushed to every spectator
type wsEnvelope struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Data    any    `json:"data"`
}

// WebSocketHub fans tick snapshots and one-shot events out to spectator
// connections, with DoS protection. It satisfies game.EventSink, so the
// engine hands it every published snapshot directly.
type WebSocketHub struct {
	clients    map[*wsClient]struct{}
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex

	quit     chan struct{}
	stopOnce sync.Once

	// Connection limiting per IP
	wsLimiter *WebSocketRateLimiter
}

var _ game.EventSink = (*WebSocketHub)(nil)

// NewWebSocketHub creates a new hub with connection limiting
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*wsClient]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		quit:       make(chan struct{}),
		wsLimiter:  NewWebSocketRateLimiter(MaxWSConnectionsPerIP),
	}
}

// Run starts the hub. All client map writes and send-channel closes
// happen on this goroutine, which is what makes the non-blocking
// fan-out below safe.
func (h *WebSocketHub) Run() {
	for {
		select {
		case <-h.quit:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("📱 Client connected from %s (%d total)", client.ip, count)
			UpdateWSConnections(count)

		case client := <-h.unregister:
			h.dropClient(client, "")

		case message := <-h.broadcast:
			var slow []*wsClient
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			for _, client := range slow {
				h.dropClient(client, "send queue full")
			}
			IncrementWSMessages()
		}
	}
}

// Stop ends the hub loop. Connections drain on their own as their
// pumps notice.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
	})
}

// dropClient removes a client and closes its queue exactly once.
// Only the Run goroutine calls this.
func (h *WebSocketHub) dropClient(client *wsClient, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	count := len(h.clients)
	h.mu.Unlock()

	h.wsLimiter.Release(client.ip)
	close(client.send)

	if reason != "" {
		log.Printf("⚠️ Dropping WebSocket client %s: %s", client.ip, reason)
	} else {
		log.Printf("📱 Client disconnected (%d remaining)", count)
	}
	UpdateWSConnections(count)
}

// BroadcastSnapshot pushes the per-tick snapshot to all spectators.
// Called from the tick thread, and the snapshot buffer is recycled a
// couple of publishes later, so the marshal happens here and only the
// encoded bytes travel further.
func (h *WebSocketHub) BroadcastSnapshot(snap *game.Snapshot) {
	UpdatePlayerCount(len(snap.Players))
	h.Broadcast("snapshot", snap)
}

// BroadcastEvent pushes a one-shot event to all spectators.
func (h *WebSocketHub) BroadcastEvent(event string, payload any) {
	if event == game.EventTypeMatchEnd.String() {
		RecordMatchCompleted()
	}
	h.Broadcast(event, payload)
}

// Broadcast marshals one frame and queues it without ever blocking the
// caller. With no spectators connected the marshal is skipped entirely.
func (h *WebSocketHub) Broadcast(event string, data interface{}) {
	if h.ClientCount() == 0 {
		return
	}

	frame, err := json.Marshal(wsEnvelope{Channel: WSChannel, Event: event, Data: data})
	if err != nil {
		return
	}

	select {
	case h.broadcast <- frame:
	default:
		// Channel full, skip (backpressure)
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket handles incoming WebSocket connections with DoS protection
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Get client IP for rate limiting
	ip := GetClientIP(r)

	// Check total connection limit
	if h.ClientCount() >= MaxWSConnectionsTotal {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached")
		RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	// Check per-IP connection limit
	if !h.wsLimiter.Allow(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	// Upgrade to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.wsLimiter.Release(ip) // Release the slot we reserved
		return
	}

	client := &wsClient{conn: conn, ip: ip, send: make(chan []byte, clientSendBuffer)}
	select {
	case h.register <- client:
	case <-h.quit:
		h.wsLimiter.Release(ip)
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

// writePump drains the client's queue onto the wire. It exits when the
// hub closes the queue or the write fails; either way the connection
// closes and readPump notices.
func (c *wsClient) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// readPump discards inbound frames until the connection dies. Spectator
// connections are one-way; reading is only for close detection.
func (c *wsClient) readPump(h *WebSocketHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.quit:
		}
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
