package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-sesame/internal/auth"
	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sesame/internal/observer"
)

// Stream frame operations. Clients send subscribe, unsubscribe and ping;
// the server answers with ack, pong or error and pushes event frames.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPing        = "ping"
	OpPong        = "pong"
	OpAck         = "ack"
	OpEvent       = "event"
	OpError       = "error"
)

const (
	clientQueueSize = 256
	hubQueueSize    = 1024

	defaultWSMaxMessageSize = 8192
	defaultWSPingInterval   = 30 * time.Second
	defaultWSPongTimeout    = 10 * time.Second
)

// streamChannels are the channels a client may subscribe to.
var streamChannels = map[string]struct{}{
	observer.ChannelTriggerEvent: {},
	observer.ChannelTriggerState: {},
	observer.ChannelLockState:    {},
	observer.ChannelServerStatus: {},
}

// Frame is one stream message in either direction.
type Frame struct {
	Op       string          `json:"op"`
	Ref      string          `json:"ref,omitempty"`
	Channel  string          `json:"channel,omitempty"`
	Channels []string        `json:"channels,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Message  string          `json:"message,omitempty"`
	At       *time.Time      `json:"at,omitempty"`
}

type delivery struct {
	channel string
	data    []byte
}

// Hub fans stream events out to WebSocket clients. A single Run loop owns
// the client set; everything else talks to it over channels.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger
	now    func() time.Time

	join     chan *streamClient
	leave    chan *streamClient
	outbound chan delivery
	stopped  chan struct{}

	running atomic.Bool
	clients atomic.Int64
	dropped atomic.Uint64
}

var _ observer.Broadcaster = (*Hub)(nil)

// NewHub creates a hub. Zero settings in cfg take defaults.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultWSMaxMessageSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = int(defaultWSPingInterval.Seconds())
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = int(defaultWSPongTimeout.Seconds())
	}
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		join:     make(chan *streamClient),
		leave:    make(chan *streamClient),
		outbound: make(chan delivery, hubQueueSize),
		stopped:  make(chan struct{}),
	}
}

// Run delivers events until ctx is cancelled, then disconnects every
// client. Only the first call runs; later calls return immediately.
func (h *Hub) Run(ctx context.Context) {
	if !h.running.CompareAndSwap(false, true) {
		return
	}
	defer close(h.stopped)

	members := make(map[*streamClient]struct{})
	drop := func(c *streamClient) {
		if _, ok := members[c]; ok {
			delete(members, c)
			h.clients.Add(-1)
		}
		c.close()
	}

	for {
		select {
		case <-ctx.Done():
			for c := range members {
				drop(c)
			}
			return

		case c := <-h.join:
			members[c] = struct{}{}
			h.clients.Add(1)
			h.logger.Debug("stream client joined", "subject", c.subject, "clients", len(members))

		case c := <-h.leave:
			drop(c)
			h.logger.Debug("stream client left", "subject", c.subject, "clients", len(members))

		case d := <-h.outbound:
			for c := range members {
				if !c.subscribed(d.channel) {
					continue
				}
				if !c.enqueue(d.data) {
					h.logger.Warn("disconnecting slow stream client", "subject", c.subject, "channel", d.channel)
					drop(c)
				}
			}
		}
	}
}

// Broadcast queues payload for subscribers of channel. It never blocks;
// events are discarded when the hub queue is full.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("encoding stream payload", "channel", channel, "error", err)
		return
	}
	at := h.now().UTC()
	frame, err := json.Marshal(Frame{Op: OpEvent, Channel: channel, Data: data, At: &at})
	if err != nil {
		h.logger.Error("encoding stream frame", "channel", channel, "error", err)
		return
	}

	select {
	case h.outbound <- delivery{channel: channel, data: frame}:
	default:
		if h.dropped.Add(1) == 1 {
			h.logger.Warn("stream queue full, dropping events", "channel", channel)
		}
	}
}

// ClientCount returns the number of connected stream clients.
func (h *Hub) ClientCount() int {
	return int(h.clients.Load())
}

// Dropped returns the number of events discarded because the hub queue
// was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) add(c *streamClient) bool {
	select {
	case h.join <- c:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) remove(c *streamClient) {
	select {
	case h.leave <- c:
	case <-h.stopped:
	}
}

// streamClient is one WebSocket connection. The send queue is never
// closed; quit tells the writer to hang up.
type streamClient struct {
	hub     *Hub
	conn    *websocket.Conn
	subject string
	role    auth.Role

	send     chan []byte
	quit     chan struct{}
	quitOnce sync.Once

	mu       sync.Mutex
	channels map[string]struct{}
}

func (c *streamClient) close() {
	c.quitOnce.Do(func() { close(c.quit) })
}

// enqueue reports false when the client is gone or its queue is full.
func (c *streamClient) enqueue(data []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *streamClient) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.channels[channel]
	return ok
}

// upgrader accepts any origin; CORS is enforced by the middleware.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebSocket serves GET /ws?ticket=... . The ticket comes from
// POST /auth/ws-ticket and is single-use.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	entry, ok := s.tickets.consume(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &streamClient{
		hub:      s.hub,
		conn:     conn,
		subject:  entry.subject,
		role:     entry.role,
		send:     make(chan []byte, clientQueueSize),
		quit:     make(chan struct{}),
		channels: make(map[string]struct{}),
	}
	if !s.hub.add(c) {
		conn.Close() //nolint:errcheck // Hub already stopped
		return
	}

	go c.writeLoop()
	c.readLoop()
}

func (c *streamClient) timeouts() (ping, pong time.Duration) {
	return time.Duration(c.hub.cfg.PingInterval) * time.Second,
		time.Duration(c.hub.cfg.PongTimeout) * time.Second
}

// readLoop handles client frames until the connection fails or the hub
// drops the client.
func (c *streamClient) readLoop() {
	defer func() {
		c.close()
		c.hub.remove(c)
	}()

	ping, pong := c.timeouts()
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(ping + pong)) }

	c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	extend() //nolint:errcheck // A failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("stream read failed", "subject", c.subject, "error", err)
			}
			return
		}
		// Browsers do not always answer protocol pings; any frame counts.
		extend() //nolint:errcheck // A failed deadline surfaces on the next read
		c.dispatch(data)
	}
}

// writeLoop drains the send queue and keeps the connection alive with
// pings. It owns closing the connection.
func (c *streamClient) writeLoop() {
	ping, pong := c.timeouts()
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // Unblocks readLoop
	}()

	write := func(kind int, data []byte) error {
		if err := c.conn.SetWriteDeadline(time.Now().Add(pong)); err != nil {
			return err
		}
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case <-c.quit:
			write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "")) //nolint:errcheck // Closing anyway
			return
		case data := <-c.send:
			if write(websocket.TextMessage, data) != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				c.close()
				return
			}
		}
	}
}

func (c *streamClient) dispatch(data []byte) {
	var in Frame
	if err := json.Unmarshal(data, &in); err != nil {
		c.fail("", "invalid JSON frame")
		return
	}

	switch in.Op {
	case OpSubscribe:
		c.subscribe(in)
	case OpUnsubscribe:
		c.unsubscribe(in)
	case OpPing:
		c.reply(Frame{Op: OpPong, Ref: in.Ref})
	default:
		c.fail(in.Ref, "unknown op: "+in.Op)
	}
}

func (c *streamClient) subscribe(in Frame) {
	if len(in.Channels) == 0 {
		c.fail(in.Ref, "channels is required")
		return
	}
	for _, ch := range in.Channels {
		if _, ok := streamChannels[ch]; !ok {
			c.fail(in.Ref, "unknown channel: "+ch)
			return
		}
	}

	c.mu.Lock()
	for _, ch := range in.Channels {
		c.channels[ch] = struct{}{}
	}
	current := c.channelList()
	c.mu.Unlock()

	c.hub.logger.Info("stream client subscribed", "subject", c.subject, "role", string(c.role), "channels", in.Channels)
	c.reply(Frame{Op: OpAck, Ref: in.Ref, Channels: current})
}

func (c *streamClient) unsubscribe(in Frame) {
	c.mu.Lock()
	for _, ch := range in.Channels {
		delete(c.channels, ch)
	}
	current := c.channelList()
	c.mu.Unlock()

	c.reply(Frame{Op: OpAck, Ref: in.Ref, Channels: current})
}

// channelList returns the subscribed channels in order. Callers hold mu.
func (c *streamClient) channelList() []string {
	list := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		list = append(list, ch)
	}
	slices.Sort(list)
	return list
}

func (c *streamClient) fail(ref, message string) {
	c.reply(Frame{Op: OpError, Ref: ref, Message: message})
}

func (c *streamClient) reply(f Frame) {
	at := c.hub.now().UTC()
	f.At = &at
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	if !c.enqueue(data) {
		c.close()
	}
}
