package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/StrathCole/oracle-resolver/pkg/fixedpoint"
	"github.com/StrathCole/oracle-resolver/pkg/logging"
	"github.com/StrathCole/oracle-resolver/pkg/server/aggregator"
	"github.com/StrathCole/oracle-resolver/pkg/server/sources"
)

var _ aggregator.EventSink = (*WebSocketServer)(nil)

// WebSocketServer streams aggregator events to connected clients.
type WebSocketServer struct {
	addr         string
	baseDecimals uint8
	logger       *logging.Logger
	upgrader     websocket.Upgrader

	// Client management
	mu      sync.RWMutex
	clients map[*WebSocketClient]bool

	updates   chan aggregator.Event
	broadcast sync.Once

	// Server control
	ctx    context.Context
	cancel context.CancelFunc
}

// WebSocketClient represents a connected WebSocket client.
type WebSocketClient struct {
	conn          *websocket.Conn
	send          chan []byte
	server        *WebSocketServer
	subscribedAll bool
	subscribedSet map[string]bool
	mu            sync.RWMutex
}

// WebSocketMessage represents a client message.
type WebSocketMessage struct {
	Type   string   `json:"type"`   // "subscribe", "unsubscribe", "ping"
	Assets []string `json:"assets"` // Assets to (un)subscribe, "*" for all
}

// EventMessage is sent to clients for every committed event.
type EventMessage struct {
	Type      string `json:"type"` // "event"
	ID        string `json:"id"`
	Event     string `json:"event"`
	Asset     string `json:"asset"`
	Actor     string `json:"actor"`
	Provider  string `json:"provider,omitempty"`
	Price     string `json:"price,omitempty"`
	Timestamp string `json:"timestamp"` // RFC 3339
}

// NewWebSocketServer creates a new WebSocket server. addr may be empty when
// the handler is mounted on the HTTP server instead.
func NewWebSocketServer(addr string, baseDecimals uint8, logger *logging.Logger) *WebSocketServer {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	return &WebSocketServer{
		addr:         addr,
		baseDecimals: baseDecimals,
		logger:       logger.With("component", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		clients: make(map[*WebSocketClient]bool),
		updates: make(chan aggregator.Event, 100),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Handler returns the upgrade handler and starts the broadcaster.
func (s *WebSocketServer) Handler() http.Handler {
	s.broadcast.Do(func() { go s.broadcastUpdates() })
	return http.HandlerFunc(s.handleWebSocket)
}

// Start serves /ws on its own address until Stop.
func (s *WebSocketServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.Handler())

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("Starting WebSocket server", "addr", s.addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("WebSocket server error", "error", err)
		}
	}()

	select {
	case <-s.ctx.Done():
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// Stop stops the broadcaster and the listener.
func (s *WebSocketServer) Stop() {
	s.cancel()
}

// Publish implements aggregator.EventSink. Events are dropped when the
// queue is full.
func (s *WebSocketServer) Publish(ev aggregator.Event) {
	select {
	case s.updates <- ev:
	default:
		s.logger.Warn("Update channel full, dropping event", "event", string(ev.Type), "asset", ev.Asset)
	}
}

// ClientCount returns the number of connected clients.
func (s *WebSocketServer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *WebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := &WebSocketClient{
		conn:          conn,
		send:          make(chan []byte, 256),
		server:        s,
		subscribedAll: true,
		subscribedSet: make(map[string]bool),
	}

	s.registerClient(client)

	go client.writePump()
	go client.readPump()

	s.logger.Info("New WebSocket client connected", "remote", conn.RemoteAddr().String())
}

func (s *WebSocketServer) registerClient(client *WebSocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
}

func (s *WebSocketServer) unregisterClient(client *WebSocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
	}
}

func (s *WebSocketServer) broadcastUpdates() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.updates:
			s.send(ev)
		}
	}
}

func (s *WebSocketServer) send(ev aggregator.Event) {
	message := EventMessage{
		Type:      "event",
		ID:        ev.ID.String(),
		Event:     string(ev.Type),
		Asset:     ev.Asset,
		Actor:     string(ev.Actor),
		Provider:  ev.Provider,
		Timestamp: ev.At.UTC().Format(time.RFC3339),
	}
	if !ev.Price.IsZero() {
		message.Price = fixedpoint.ToDecimal(ev.Price, s.baseDecimals).String()
	}

	data, err := json.Marshal(message)
	if err != nil {
		s.logger.Error("Failed to marshal event", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		if client.shouldReceive(ev.Asset) {
			select {
			case client.send <- data:
			default:
				s.logger.Warn("Client send buffer full, skipping event")
			}
		}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.server.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.server.unregisterClient(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

func (c *WebSocketClient) handleMessage(data []byte) {
	var msg WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.server.logger.Warn("Invalid client message", "error", err)
		return
	}

	switch msg.Type {
	case "subscribe":
		c.subscribe(msg.Assets)
		c.reply("subscribed")
	case "unsubscribe":
		c.unsubscribe(msg.Assets)
		c.reply("unsubscribed")
	case "ping":
		c.reply("pong")
	default:
		c.server.logger.Warn("Unknown message type", "type", msg.Type)
	}
}

func (c *WebSocketClient) subscribe(assets []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(assets) == 0 || (len(assets) == 1 && assets[0] == "*") {
		c.subscribedAll = true
		c.subscribedSet = make(map[string]bool)
	} else {
		c.subscribedAll = false
		for _, asset := range assets {
			c.subscribedSet[sources.NormalizeAsset(asset)] = true
		}
	}

	c.server.logger.Debug("Client subscribed", "assets", assets)
}

func (c *WebSocketClient) unsubscribe(assets []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(assets) == 0 || (len(assets) == 1 && assets[0] == "*") {
		c.subscribedAll = false
		c.subscribedSet = make(map[string]bool)
	} else {
		for _, asset := range assets {
			delete(c.subscribedSet, sources.NormalizeAsset(asset))
		}
	}

	c.server.logger.Debug("Client unsubscribed", "assets", assets)
}

func (c *WebSocketClient) shouldReceive(asset string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribedAll || c.subscribedSet[asset]
}

// reply sends a control acknowledgement such as "pong".
func (c *WebSocketClient) reply(typ string) {
	data, _ := json.Marshal(map[string]string{"type": typ})
	c.server.mu.RLock()
	defer c.server.mu.RUnlock()
	if !c.server.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
