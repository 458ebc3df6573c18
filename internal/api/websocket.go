package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"duel-arena/internal/match"
	"duel-arena/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// DefaultSendBuffer is the outbound queue per connection. At 20 Hz
	// state broadcasts this is several seconds of backlog.
	DefaultSendBuffer = 64
)

// Error reasons sent on protocol.EventError by the transport itself.
const (
	ReasonBadMessage     = "bad_message"
	ReasonUnknownEvent   = "unknown_event"
	ReasonMatchNotFound  = "match_not_found"
	ReasonMatchComplete  = "match_complete"
	ReasonInternalFailed = "internal_error"
)

// MatchService is what the hub needs from the match layer.
type MatchService interface {
	Join(connID, userID, matchID string) (protocol.JoinedPayload, error)
	HandleInput(connID, userID string, p protocol.InputPayload) error
	Leave(connID, userID, matchID string)
	Disconnect(connID string)
}

// HubConfig configures a Hub.
type HubConfig struct {
	Tokens     *TokenIssuer // required
	Origins    *OriginPolicy
	Limiter    *WebSocketRateLimiter
	SendBuffer int
}

type wsClient struct {
	id     string
	userID string
	ip     string
	codec  protocol.Codec
	conn   *websocket.Conn
	send   chan []byte
}

// Hub owns every WebSocket connection. It implements match.BroadcastSink:
// the match layer addresses connections by id and the hub encodes each
// event once per codec.
type Hub struct {
	cfg      HubConfig
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*wsClient
	service MatchService

	register   chan *wsClient
	unregister chan *wsClient
	quit       chan struct{}
}

var _ match.BroadcastSink = (*Hub)(nil)

// NewHub creates a hub. Bind a MatchService and start Run before serving.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Origins == nil {
		cfg.Origins = NewOriginPolicy(nil)
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewWebSocketRateLimiter(0, 0)
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}
	h := &Hub{
		cfg:        cfg,
		clients:    make(map[string]*wsClient),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		quit:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if cfg.Origins.Allowed(origin) {
				return true
			}
			log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// Bind sets the service inbound events are dispatched to. The match
// manager needs the hub as its sink, so the two are wired after both exist.
func (h *Hub) Bind(svc MatchService) {
	h.mu.Lock()
	h.service = svc
	h.mu.Unlock()
}

func (h *Hub) svc() MatchService {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.service
}

// Run registers and unregisters clients until ctx is cancelled, then
// closes every remaining connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.quit)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				delete(h.clients, id)
				close(c.send)
				h.cfg.Limiter.Release(c.ip)
			}
			h.mu.Unlock()
			UpdateWSConnections(0)
			log.Println("📱 WebSocket hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("📱 %s connected from %s as %s (%d total)", c.userID, c.ip, c.id, count)
			UpdateWSConnections(count)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
				h.cfg.Limiter.Release(c.ip)
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("📱 %s disconnected (%d remaining)", c.id, count)
			UpdateWSConnections(count)
		}
	}
}

// Send implements match.BroadcastSink. A full queue drops the frame for
// that connection only; the next state broadcast supersedes it.
func (h *Hub) Send(connIDs []string, event string, payload interface{}) {
	encoded := make(map[string][]byte, 2)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range connIDs {
		c, ok := h.clients[id]
		if !ok {
			continue
		}
		frame, ok := encoded[c.codec.Name()]
		if !ok {
			var err error
			frame, err = c.codec.Encode(event, payload)
			if err != nil {
				log.Printf("❌ Encode %s as %s: %v", event, c.codec.Name(), err)
			}
			encoded[c.codec.Name()] = frame
		}
		if frame == nil {
			continue
		}
		select {
		case c.send <- frame:
			countWSMessage("out")
		default:
			countWSMessage("dropped")
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket authenticates, applies connection limits and upgrades.
// Query parameters: token (actor token) and codec ("json" or "msgpack").
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	svc := h.svc()
	if svc == nil {
		writeError(w, "not_ready", http.StatusServiceUnavailable)
		return
	}

	userID, err := h.cfg.Tokens.Identify(r)
	if err != nil {
		RecordConnectionRejected("auth")
		writeError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	ip := GetClientIP(r)
	if reason := h.cfg.Limiter.Acquire(ip); reason != "" {
		log.Printf("⚠️ WebSocket connection rejected from %s: %s", ip, reason)
		RecordConnectionRejected(reason)
		status := http.StatusTooManyRequests
		if reason == "ws_total_limit" {
			status = http.StatusServiceUnavailable
		}
		writeError(w, reason, status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.cfg.Limiter.Release(ip)
		return
	}

	c := &wsClient{
		id:     uuid.NewString(),
		userID: userID,
		ip:     ip,
		codec:  protocol.CodecByName(r.URL.Query().Get("codec")),
		conn:   conn,
		send:   make(chan []byte, h.cfg.SendBuffer),
	}
	select {
	case h.register <- c:
	case <-h.quit:
		h.cfg.Limiter.Release(ip)
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c, svc)
}

func (h *Hub) readPump(c *wsClient, svc MatchService) {
	defer func() {
		svc.Disconnect(c.id)
		select {
		case h.unregister <- c:
		case <-h.quit:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️ WebSocket %s read: %v", c.id, err)
			}
			return
		}
		countWSMessage("in")
		h.dispatch(c, svc, data)
	}
}

func (h *Hub) dispatch(c *wsClient, svc MatchService, data []byte) {
	msg, err := c.codec.Decode(data)
	if err != nil {
		h.reply(c, protocol.ErrorPayload{Reason: ReasonBadMessage, Detail: err.Error()})
		return
	}

	switch msg.Type {
	case protocol.EventJoin:
		var p protocol.JoinPayload
		if err := msg.Bind(&p); err != nil {
			h.reply(c, protocol.ErrorPayload{Reason: ReasonBadMessage, Detail: err.Error()})
			return
		}
		if _, err := svc.Join(c.id, c.userID, p.MatchID); err != nil {
			h.reply(c, protocol.ErrorPayload{MatchID: p.MatchID, Reason: joinReason(err), Detail: err.Error()})
		}

	case protocol.EventInput:
		var p protocol.InputPayload
		if err := msg.Bind(&p); err != nil {
			h.reply(c, protocol.ErrorPayload{Reason: ReasonBadMessage, Detail: err.Error()})
			return
		}
		// rejections are reported to this connection by the service
		svc.HandleInput(c.id, c.userID, p)

	case protocol.EventLeave:
		var p protocol.LeavePayload
		if err := msg.Bind(&p); err != nil {
			h.reply(c, protocol.ErrorPayload{Reason: ReasonBadMessage, Detail: err.Error()})
			return
		}
		svc.Leave(c.id, c.userID, p.MatchID)

	default:
		h.reply(c, protocol.ErrorPayload{Reason: ReasonUnknownEvent, Detail: msg.Type})
	}
}

func (h *Hub) reply(c *wsClient, p protocol.ErrorPayload) {
	h.Send([]string{c.id}, protocol.EventError, p)
}

func joinReason(err error) string {
	switch {
	case errors.Is(err, match.ErrMatchNotFound):
		return ReasonMatchNotFound
	case errors.Is(err, match.ErrMatchComplete):
		return ReasonMatchComplete
	default:
		return ReasonInternalFailed
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	frameType := websocket.TextMessage
	if c.codec.Binary() {
		frameType = websocket.BinaryMessage
	}

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(frameType, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
