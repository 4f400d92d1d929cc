package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/dkn-cloud-bridge/internal/engine"
	"github.com/nerrad567/dkn-cloud-bridge/internal/infrastructure/config"
	"github.com/nerrad567/dkn-cloud-bridge/internal/infrastructure/logging"
)

// WebSocket message types. Clients send subscribe/unsubscribe/ping; the
// bridge answers with response/pong/error and pushes event frames.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Event channels a client can subscribe to.
const (
	ChannelState        = "device.state"
	ChannelConnectivity = "device.connectivity"
)

// outboundBuffer is the per-connection queue of pending frames. A client
// that falls this far behind starts losing events; retained MQTT topics
// and the REST API are the catch-up paths.
const outboundBuffer = 256

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload carries the channel list for subscribe and
// unsubscribe requests.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsStateEvent is the payload pushed on state and connectivity channels.
type wsStateEvent struct {
	DeviceID  string     `json:"device_id"`
	Source    string     `json:"source,omitempty"`
	CommandID string     `json:"command_id,omitempty"`
	State     deviceView `json:"state"`
}

// encodeFrame marshals an envelope with a fresh timestamp.
func encodeFrame(msgType, id, eventType string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

// Hub fans engine events out to connected WebSocket clients.
//
// Each connection tracks its own channel subscriptions; the hub only
// snapshots the connection set under its lock and never blocks on a
// slow client.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu    sync.RWMutex
	conns map[*wsConn]struct{}
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: logger,
		conns:  make(map[*wsConn]struct{}),
	}
}

// Run blocks until the context is cancelled, then tears down every
// connection.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		close(conn.outbound)
		conn.ws.Close()
		delete(h.conns, conn)
	}
}

// EngineSubscriber returns an engine callback that pushes state events
// on device.state and connectivity transitions on device.connectivity.
func (h *Hub) EngineSubscriber() func(engine.Event) {
	return func(ev engine.Event) {
		payload := wsStateEvent{
			DeviceID:  ev.DeviceID,
			Source:    ev.Source,
			CommandID: ev.CommandID,
			State:     buildDeviceView(ev.DeviceID, ev.State),
		}
		switch ev.Type {
		case engine.EventState:
			h.broadcast(ChannelState, payload)
		case engine.EventConnectivity:
			h.broadcast(ChannelConnectivity, payload)
		}
	}
}

// broadcast delivers one event frame to every subscriber of channel.
func (h *Hub) broadcast(channel string, payload any) {
	frame, err := encodeFrame(WSTypeEvent, "", channel, payload)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*wsConn, 0, len(h.conns))
	for conn := range h.conns {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		if conn.subscribedTo(channel) {
			conn.deliver(frame)
		}
	}
}

// attach adds a connection to the fan-out set.
func (h *Hub) attach(conn *wsConn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	total := len(h.conns)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", total)
}

// detach removes a connection. Only the caller that actually removes it
// from the set closes the outbound channel, so a read-loop exit racing
// hub shutdown cannot double-close.
func (h *Hub) detach(conn *wsConn) {
	h.mu.Lock()
	_, present := h.conns[conn]
	delete(h.conns, conn)
	total := len(h.conns)
	h.mu.Unlock()

	if present {
		close(conn.outbound)
	}
	h.logger.Debug("websocket client disconnected", "clients", total)
}

// ClientCount reports the number of attached connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// upgrader accepts any origin: the API binds to loopback and access is
// token-gated, so origin checks add nothing.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// handleWebSocket upgrades the request and starts the connection pumps.
// The bearer token was already checked by the auth middleware, header or
// token query parameter.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	conn := &wsConn{
		hub:      s.hub,
		ws:       ws,
		outbound: make(chan []byte, outboundBuffer),
		subs:     make(map[string]struct{}),
	}
	s.hub.attach(conn)

	go conn.writeLoop(s.cfg.WS)
	go conn.readLoop(s.cfg.WS)
}

// wsConn is one client connection with its subscription set.
type wsConn struct {
	hub      *Hub
	ws       *websocket.Conn
	outbound chan []byte

	mu   sync.RWMutex
	subs map[string]struct{}
}

// readLoop consumes client frames until the connection dies. Any inbound
// frame, not just a pong, refreshes the read deadline.
func (c *wsConn) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.detach(c)
		c.ws.Close()
	}()

	deadline := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second

	c.ws.SetReadLimit(int64(cfg.MaxMessageSize))
	//nolint:errcheck // Best-effort deadline on connection setup
	c.ws.SetReadDeadline(time.Now().Add(deadline))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.ws.SetReadDeadline(time.Now().Add(deadline))
		c.dispatch(frame)
	}
}

// writeLoop drains the outbound queue and keeps the connection alive
// with protocol pings.
func (c *wsConn) writeLoop(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case frame, ok := <-c.outbound:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound frame.
func (c *wsConn) dispatch(frame []byte) {
	var msg WSMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		c.replyError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		if channels, ok := c.channelList(msg); ok {
			c.updateSubs(channels, true)
			c.reply(msg.ID, WSTypeResponse, map[string]any{"subscribed": channels})
		}
	case WSTypeUnsubscribe:
		if channels, ok := c.channelList(msg); ok {
			c.updateSubs(channels, false)
			c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": channels})
		}
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.replyError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// channelList extracts the channels from a subscribe or unsubscribe
// payload, reporting a protocol error to the client on failure.
func (c *wsConn) channelList(msg WSMessage) ([]string, bool) {
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		c.replyError(msg.ID, "invalid payload")
		return nil, false
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		c.replyError(msg.ID, "invalid payload")
		return nil, false
	}
	return sub.Channels, true
}

func (c *wsConn) updateSubs(channels []string, add bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if add {
			c.subs[ch] = struct{}{}
		} else {
			delete(c.subs, ch)
		}
	}
}

func (c *wsConn) subscribedTo(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subs[channel]
	return ok
}

// deliver queues a frame without ever blocking. A full buffer drops the
// frame; a channel closed by a concurrent detach is absorbed.
func (c *wsConn) deliver(frame []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.outbound <- frame:
	default:
	}
}

// reply sends a control frame back to this client only.
func (c *wsConn) reply(id, msgType string, payload any) {
	frame, err := encodeFrame(msgType, id, "", payload)
	if err != nil {
		return
	}
	c.deliver(frame)
}

func (c *wsConn) replyError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}
