package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"poolmarket/internal/models"
	"poolmarket/internal/settlement"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

const (
	MessageMarket    = "market"
	MessageCountdown = "countdown"
)

// Message is the envelope of every frame sent to a subscriber.
type Message struct {
	Type     string      `json:"type"`
	MarketID uint        `json:"market_id"`
	Payload  interface{} `json:"payload"`
}

// SnapshotSource loads the current view of a market.
type SnapshotSource interface {
	SnapshotByID(ctx context.Context, marketID uint) (*models.MarketSnapshot, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans market snapshots out to the clients subscribed to that market and
// drives a per-client countdown.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan *models.MarketSnapshot
	register   chan *client
	unregister chan *client
	done       chan struct{}
	source     SnapshotSource
	interval   time.Duration
	logger     *zap.Logger
	mu         sync.RWMutex
}

// NewHub creates a hub. Call Run before serving connections.
func NewHub(source SnapshotSource, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan *models.MarketSnapshot, sendBufferSize),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		source:     source,
		interval:   time.Second,
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				c.closeSend()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Debug("ws client registered", zap.Uint("market_id", c.marketID))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.closeSend()
			}
			h.mu.Unlock()

		case snapshot := <-h.broadcast:
			data, err := json.Marshal(Message{Type: MessageMarket, MarketID: snapshot.ID, Payload: snapshot})
			if err != nil {
				h.logger.Error("failed to encode snapshot", zap.Uint("market_id", snapshot.ID), zap.Error(err))
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				if c.marketID != snapshot.ID {
					continue
				}
				if !c.trySend(data) {
					h.logger.Warn("ws client too slow, dropping message", zap.Uint("market_id", c.marketID))
					continue
				}
				c.updateEndTime(snapshot.EndTime)
			}
			h.mu.RUnlock()
		}
	}
}

// PublishMarket queues a snapshot for its subscribers. It never blocks.
func (h *Hub) PublishMarket(snapshot *models.MarketSnapshot) {
	if snapshot == nil {
		return
	}
	select {
	case h.broadcast <- snapshot:
	default:
		h.logger.Warn("ws broadcast buffer full, dropping snapshot", zap.Uint("market_id", snapshot.ID))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeMarket upgrades the request and subscribes the connection to
// marketID. The current snapshot is sent first.
func (h *Hub) ServeMarket(w http.ResponseWriter, r *http.Request, marketID uint) {
	snapshot, err := h.source.SnapshotByID(r.Context(), marketID)
	if err != nil {
		http.Error(w, "market not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		hub:      h,
		conn:     conn,
		marketID: marketID,
		send:     make(chan []byte, sendBufferSize),
		endTimes: make(chan int64, 1),
		cancel:   cancel,
	}

	if data, err := json.Marshal(Message{Type: MessageMarket, MarketID: marketID, Payload: snapshot}); err == nil {
		c.trySend(data)
	}
	c.updateEndTime(snapshot.EndTime)

	select {
	case h.register <- c:
	case <-h.done:
		cancel()
		conn.Close()
		return
	}

	go c.writePump()
	go c.countdownLoop(ctx)
	go c.readPump()
}

type client struct {
	hub      *Hub
	conn     *websocket.Conn
	marketID uint
	send     chan []byte
	endTimes chan int64
	cancel   context.CancelFunc

	sendMu sync.Mutex
	closed bool
}

func (c *client) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// updateEndTime replaces any pending end time with the latest one.
func (c *client) updateEndTime(endTime int64) {
	select {
	case <-c.endTimes:
	default:
	}
	select {
	case c.endTimes <- endTime:
	default:
	}
}

// countdownLoop restarts the ticker whenever the market's end time changes.
func (c *client) countdownLoop(ctx context.Context) {
	current := int64(-1)
	stop := func() {}
	defer func() { stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case endTime := <-c.endTimes:
			if endTime == current {
				continue
			}
			current = endTime
			stop()
			tickCtx, cancel := context.WithCancel(ctx)
			stop = cancel
			go settlement.NewTicker(endTime, c.hub.interval).Run(tickCtx, c.emitCountdown)
		}
	}
}

func (c *client) emitCountdown(cd settlement.Countdown) {
	data, err := json.Marshal(Message{Type: MessageCountdown, MarketID: c.marketID, Payload: cd})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *client) readPump() {
	defer func() {
		c.cancel()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("ws read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
