package quote

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jarvis-network/synthereum-sub002/internal/metrics"
)

// WSMessage is a JSON message sent to WebSocket clients. Clients re-run
// their quotes when a pool's price or one of their positions changes.
type WSMessage struct {
	Type            string `json:"type"`
	PoolID          string `json:"pool_id"`
	Sponsor         string `json:"sponsor,omitempty"`
	CollateralPrice string `json:"collateral_price,omitempty"`
	SyntheticPrice  string `json:"synthetic_price,omitempty"`
	GlobalRatio     string `json:"global_ratio,omitempty"`
	Collateral      string `json:"collateral,omitempty"`
	Tokens          string `json:"tokens,omitempty"`
}

// Message types.
const (
	MsgPriceUpdated    = "price_updated"
	MsgPoolUpdated     = "pool_updated"
	MsgPositionUpdated = "position_updated"
)

const (
	wsWriteWait   = 10 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = 30 * time.Second
	wsSendQueue   = 16
	wsMaxInbound  = 512
	hubBacklogCap = 256
)

// wsClient is one subscriber. Only its write pump writes to conn.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// WSHub fans snapshot changes out to subscribers. Run owns membership; a
// subscriber that falls wsSendQueue messages behind is disconnected.
type WSHub struct {
	mu         sync.RWMutex
	clients    map[*wsClient]struct{}
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*wsClient]struct{}),
		broadcast:  make(chan []byte, hubBacklogCap),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

// Run processes membership changes and broadcasts. Must be called in a
// goroutine.
func (h *WSHub) Run() {
	for {
		select {
		case c := <-h.register:
			h.attach(c)
		case c := <-h.unregister:
			h.detach(c)
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *WSHub) attach(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(n))
	slog.Info("ws subscriber attached", "clients", n)
}

func (h *WSHub) detach(c *wsClient) {
	h.mu.Lock()
	h.dropLocked(c)
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(n))
}

// fanOut queues msg on every subscriber without blocking on any of them.
func (h *WSHub) fanOut(msg []byte) {
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slog.Warn("ws subscriber too slow, dropping")
			h.dropLocked(c)
		}
	}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(n))
}

// dropLocked removes c and closes its queue, which ends its write pump.
// h.mu must be held.
func (h *WSHub) dropLocked(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Clients returns the number of connected clients.
func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for all subscribers. It never blocks the caller: when
// the hub backlog is full the message is dropped.
func (h *WSHub) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		slog.Warn("ws broadcast dropped", "type", msg.Type, "pool", msg.PoolID)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, wsSendQueue)}
	h.register <- c
	go c.writePump()
	go h.readPump(c)
}

// readPump discards inbound frames and detaches the client once the
// connection fails or stops answering pings.
func (h *WSHub) readPump(c *wsClient) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxInbound)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump drains the send queue and keeps the connection alive through
// proxies with periodic pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
