package mqttlink

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

const (
	defaultQoS         = 1
	defaultMaxSessions = 3
)

// MQTTClient is the MQTT subset the link uses. *mqtt.Client satisfies it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger is the logging interface used by the link.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Link.
type Options struct {
	// Client is the MQTT connection. Required.
	Client MQTTClient

	// TopicPrefix is the engine topic root. Defaults to DefaultTopicPrefix.
	TopicPrefix string

	// QoS for requests and subscriptions. Defaults to 1.
	QoS byte

	// BeginTimeout bounds the wait for the daemon to report ready.
	// Zero skips the wait.
	BeginTimeout time.Duration

	// MaxSessions is passed to the daemon in the begin request.
	MaxSessions int

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Link is a sesame.Engine backed by the engine daemon over MQTT.
//
// Thread Safety: All methods are safe for concurrent use.
type Link struct {
	client       MQTTClient
	topics       Topics
	qos          byte
	beginTimeout time.Duration
	maxSessions  int
	now          func() time.Time

	mu          sync.RWMutex
	handlers    sesame.Handlers
	sessions    map[sesame.PeerAddress]struct{}
	secret      sesame.Secret
	uuid        string
	advertising bool
	started     bool
	online      bool
	// lost is set when the daemon stops being ready after Begin and
	// cleared once it has been started again.
	lost bool

	ready     chan struct{}
	readyOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

var _ sesame.Engine = (*Link)(nil)

// New creates a link. Nothing is sent until Begin.
func New(opts Options) (*Link, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("mqtt client is required")
	}
	if opts.QoS == 0 {
		opts.QoS = defaultQoS
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = defaultMaxSessions
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Link{
		client:       opts.Client,
		topics:       NewTopics(opts.TopicPrefix),
		qos:          opts.QoS,
		beginTimeout: opts.BeginTimeout,
		maxSessions:  opts.MaxSessions,
		now:          opts.Now,
		sessions:     make(map[sesame.PeerAddress]struct{}),
		ready:        make(chan struct{}),
		logger:       noopLogger{},
	}, nil
}

// SetLogger sets the logger.
func (l *Link) SetLogger(logger Logger) {
	l.loggerMu.Lock()
	defer l.loggerMu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	l.logger = logger
}

func (l *Link) log() Logger {
	l.loggerMu.RLock()
	defer l.loggerMu.RUnlock()
	return l.logger
}

// Topics returns the engine topic builders.
func (l *Link) Topics() Topics {
	return l.topics
}

// =============================================================================
// sesame.Engine
// =============================================================================

// Begin subscribes to the daemon events, asks the daemon to start as a
// SESAME 5 device and waits for it to report ready.
func (l *Link) Begin(ctx context.Context, uuid string) error {
	if err := l.client.Subscribe(l.topics.Status(), l.qos, l.handleStatus); err != nil {
		return fmt.Errorf("subscribe to engine status: %w", err)
	}
	if err := l.client.Subscribe(l.topics.AllEvents(), l.qos, l.handleEvent); err != nil {
		return fmt.Errorf("subscribe to engine events: %w", err)
	}

	l.mu.Lock()
	l.uuid = uuid
	req := l.beginRequest()
	l.mu.Unlock()

	if err := l.publish(RequestBegin, req); err != nil {
		return err
	}

	if l.beginTimeout > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, l.beginTimeout)
		defer cancel()
		select {
		case <-l.ready:
		case <-waitCtx.Done():
			return fmt.Errorf("%w: %w", ErrNotReady, waitCtx.Err())
		}
	}

	l.mu.Lock()
	l.started = true
	l.mu.Unlock()

	l.log().Info("engine link started", "uuid", uuid, "topic_prefix", l.topics.prefix)
	return nil
}

// beginRequest builds the begin request. Callers hold mu.
func (l *Link) beginRequest() BeginRequest {
	req := BeginRequest{
		Timestamp:   l.now().UTC(),
		UUID:        l.uuid,
		MaxSessions: l.maxSessions,
	}
	if !l.secret.IsZero() {
		req.Secret = l.secret.Hex()
	}
	return req
}

// Update is a no-op: the daemon pushes events as they happen.
func (l *Link) Update() {}

// StartAdvertising asks the daemon to advertise.
func (l *Link) StartAdvertising() error {
	return l.setAdvertising(true)
}

// StopAdvertising asks the daemon to stop advertising.
func (l *Link) StopAdvertising() error {
	return l.setAdvertising(false)
}

func (l *Link) setAdvertising(enabled bool) error {
	if !l.isStarted() {
		return ErrNotStarted
	}
	if err := l.publish(RequestAdvertise, AdvertiseRequest{Timestamp: l.now().UTC(), Enabled: enabled}); err != nil {
		return err
	}
	l.mu.Lock()
	l.advertising = enabled
	l.mu.Unlock()
	return nil
}

// Advertising reports the last requested advertising state.
func (l *Link) Advertising() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.advertising
}

// SendStatus sends f to dest, or to every session when dest is nil.
func (l *Link) SendStatus(dest *sesame.PeerAddress, f sesame.LockStatusFrame) error {
	if !l.isStarted() {
		return ErrNotStarted
	}
	req := StatusRequest{Timestamp: l.now().UTC(), Frame: f, Battery: fullBattery}
	if dest != nil {
		p := peerOf(*dest)
		req.Peer = &p
	}
	return l.publish(RequestStatus, req)
}

// Disconnect asks the daemon to drop the session with addr.
func (l *Link) Disconnect(addr sesame.PeerAddress) error {
	if !l.isStarted() {
		return ErrNotStarted
	}
	return l.publish(RequestDisconnect, DisconnectRequest{Timestamp: l.now().UTC(), Peer: peerOf(addr)})
}

// HasSession reports whether the daemon reported a live session with addr.
func (l *Link) HasSession(addr sesame.PeerAddress) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.sessions[addr]
	return ok
}

// Sessions returns the number of live sessions.
func (l *Link) Sessions() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sessions)
}

// IsRegistered reports whether a pairing secret is installed.
func (l *Link) IsRegistered() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.secret.IsZero()
}

// SetRegistered installs secret. Before Begin the secret travels with the
// begin request; afterwards it is sent as a register request.
func (l *Link) SetRegistered(secret sesame.Secret) error {
	l.mu.Lock()
	l.secret = secret
	started := l.started
	l.mu.Unlock()

	if !started {
		return nil
	}
	return l.publish(RequestRegister, RegisterRequest{Timestamp: l.now().UTC(), Secret: secret.Hex()})
}

// SetHandlers installs the event callbacks.
func (l *Link) SetHandlers(h sesame.Handlers) {
	l.mu.Lock()
	l.handlers = h
	l.mu.Unlock()
}

func (l *Link) isStarted() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.started
}

func (l *Link) publish(request string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", request, err)
	}
	if err := l.client.Publish(l.topics.Request(request), payload, l.qos, false); err != nil {
		return fmt.Errorf("publish %s request: %w", request, err)
	}
	return nil
}

// =============================================================================
// Inbound
// =============================================================================

// handleStatus tracks daemon readiness. Losing the daemon ends every
// session; a daemon that comes back after Begin is started again with the
// stored UUID, secret and advertising state.
func (l *Link) handleStatus(_ string, payload []byte) error {
	var st DaemonStatus
	if err := decode(payload, &st); err != nil {
		return err
	}

	l.mu.Lock()
	wasOnline := l.online
	l.online = st.Ready
	var (
		dropped      []sesame.PeerAddress
		onDisconnect func(sesame.PeerAddress, int)
		restart      bool
	)
	switch {
	case wasOnline && !st.Ready:
		for addr := range l.sessions {
			dropped = append(dropped, addr)
		}
		clear(l.sessions)
		onDisconnect = l.handlers.OnDisconnect
		l.lost = l.started
	case !wasOnline && st.Ready && l.lost:
		restart = l.started
		l.lost = false
	}
	l.mu.Unlock()

	if st.Ready {
		l.readyOnce.Do(func() { close(l.ready) })
	}

	if wasOnline && !st.Ready {
		l.log().Warn("engine daemon reports not ready", "sessions", len(dropped))
		slices.SortFunc(dropped, func(a, b sesame.PeerAddress) int { return strings.Compare(a.String(), b.String()) })
		if onDisconnect != nil {
			for _, addr := range dropped {
				onDisconnect(addr, ReasonEngineLost)
			}
		}
	}
	if restart {
		l.log().Info("engine daemon ready again, restarting it")
		return l.restart()
	}
	return nil
}

// restart replays Begin and the last advertising request to a daemon that
// lost its state.
func (l *Link) restart() error {
	l.mu.RLock()
	req := l.beginRequest()
	advertising := l.advertising
	l.mu.RUnlock()

	if err := l.publish(RequestBegin, req); err != nil {
		return err
	}
	return l.publish(RequestAdvertise, AdvertiseRequest{Timestamp: l.now().UTC(), Enabled: advertising})
}

// Online reports whether the daemon's last status said it was ready.
func (l *Link) Online() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.online
}

// CheckOnline returns ErrNotReady unless the daemon reports ready. It
// serves as the daemon supervisor's watchdog.
func (l *Link) CheckOnline(context.Context) error {
	if !l.Online() {
		return ErrNotReady
	}
	return nil
}

// handleEvent routes a daemon event by topic.
func (l *Link) handleEvent(topic string, payload []byte) error {
	name, ok := l.topics.eventName(topic)
	if !ok {
		return fmt.Errorf("%w: topic %s", ErrInvalidMessage, topic)
	}

	switch name {
	case EventRegistration:
		return l.handleRegistration(payload)
	case EventCommand:
		return l.handleCommand(payload)
	case EventConnect:
		return l.handleConnect(payload)
	case EventDisconnect:
		return l.handleDisconnect(payload)
	default:
		l.log().Debug("ignoring engine event", "event", name)
		return nil
	}
}

func (l *Link) handleRegistration(payload []byte) error {
	var ev RegistrationEvent
	if err := decode(payload, &ev); err != nil {
		return err
	}
	addr, err := ev.PeerAddress()
	if err != nil {
		return err
	}
	secret, err := sesame.ParseSecret(ev.Secret)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.secret = secret
	cb := l.handlers.OnRegistration
	l.mu.Unlock()

	if cb != nil {
		cb(addr, secret)
	}
	return nil
}

func (l *Link) handleCommand(payload []byte) error {
	var ev CommandEvent
	if err := decode(payload, &ev); err != nil {
		return err
	}
	addr, err := ev.PeerAddress()
	if err != nil {
		return err
	}

	l.mu.RLock()
	cb := l.handlers.OnCommand
	l.mu.RUnlock()

	item := ev.ItemCode()
	if item == sesame.ItemNone {
		code := -1
		if ev.Code != nil {
			code = *ev.Code
		}
		l.log().Debug("unrecognised command item", "item", ev.Item, "code", code, "address", addr.String())
	}

	result := sesame.ResultUnknown
	if cb != nil {
		result = cb(addr, item, ev.Tag, ev.TagTypeValue())
	}

	resp := CommandResponse{
		Timestamp: l.now().UTC(),
		Seq:       ev.Seq,
		Peer:      ev.Peer,
		Result:    resultName(result),
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal command response: %w", err)
	}
	if err := l.client.Publish(l.topics.Response(EventCommand), body, l.qos, false); err != nil {
		return fmt.Errorf("publish command response: %w", err)
	}
	return nil
}

func (l *Link) handleConnect(payload []byte) error {
	var ev ConnectEvent
	if err := decode(payload, &ev); err != nil {
		return err
	}
	addr, err := ev.PeerAddress()
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.sessions[addr] = struct{}{}
	cb := l.handlers.OnConnect
	l.mu.Unlock()

	if cb != nil {
		cb(addr)
	}
	return nil
}

func (l *Link) handleDisconnect(payload []byte) error {
	var ev DisconnectEvent
	if err := decode(payload, &ev); err != nil {
		return err
	}
	addr, err := ev.PeerAddress()
	if err != nil {
		return err
	}

	l.mu.Lock()
	delete(l.sessions, addr)
	cb := l.handlers.OnDisconnect
	l.mu.Unlock()

	if cb != nil {
		cb(addr, ev.Reason)
	}
	return nil
}

// Close unsubscribes from the daemon topics and forgets all sessions.
func (l *Link) Close() error {
	l.mu.Lock()
	l.started = false
	clear(l.sessions)
	l.mu.Unlock()

	var firstErr error
	for _, topic := range []string{l.topics.AllEvents(), l.topics.Status()} {
		if err := l.client.Unsubscribe(topic); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
