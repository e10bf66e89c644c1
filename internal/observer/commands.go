package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-sesame/internal/audit"
	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

const commandTimeout = 5 * time.Second

// MQTTSubscriber is the MQTT subset the LockCommands listener uses.
type MQTTSubscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// LockController changes a lock entity's state.
type LockController interface {
	ControlLock(ctx context.Context, lockID string, state sesame.LockState) error
}

// LockCommands applies commands received on lock/{id}/set.
//
// Accepted payloads: LOCK, UNLOCK, locked, unlocked (any case), or JSON
// {"state":"locked"}.
type LockCommands struct {
	client     MQTTSubscriber
	topics     mqtt.Topics
	qos        byte
	controller LockController
	audit      *audit.Recorder
	logger     Logger
	ctx        context.Context
}

// NewLockCommands creates a listener. audit may be nil.
func NewLockCommands(client MQTTSubscriber, topics mqtt.Topics, controller LockController, rec *audit.Recorder) *LockCommands {
	return &LockCommands{
		client:     client,
		topics:     topics,
		qos:        1,
		controller: controller,
		audit:      rec,
		logger:     noopLogger{},
		ctx:        context.Background(),
	}
}

// SetLogger sets the logger. Not safe to call after Start.
func (c *LockCommands) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Start subscribes to every lock command topic. Commands use ctx as their
// parent context.
func (c *LockCommands) Start(ctx context.Context) error {
	c.ctx = ctx
	if err := c.client.Subscribe(c.topics.AllLockSets(), c.qos, c.handle); err != nil {
		return fmt.Errorf("subscribe to lock commands: %w", err)
	}
	return nil
}

// Stop unsubscribes.
func (c *LockCommands) Stop() error {
	return c.client.Unsubscribe(c.topics.AllLockSets())
}

func (c *LockCommands) handle(topic string, payload []byte) error {
	id, ok := c.topics.LockIDFromSetTopic(topic)
	if !ok {
		return fmt.Errorf("unexpected lock command topic %s", topic)
	}
	state, err := ParseLockCommand(payload)
	if err != nil {
		return fmt.Errorf("lock %s: %w", id, err)
	}

	ctx, cancel := context.WithTimeout(c.ctx, commandTimeout)
	defer cancel()

	delivered := true
	if err := c.controller.ControlLock(ctx, id, state); err != nil {
		// The state is applied even when a peer could not be told.
		if !errors.Is(err, sesame.ErrNoSession) && !errors.Is(err, sesame.ErrSendFailed) {
			return fmt.Errorf("lock %s: %w", id, err)
		}
		c.logger.Warn("lock state applied but not delivered", "lock", id, "error", err)
		delivered = false
	}

	c.logger.Info("lock command applied", "lock", id, "state", state, "source", audit.SourceMQTT)
	c.audit.Record(ctx, audit.ActionLockControl, audit.EntityLock, id, "", audit.SourceMQTT,
		map[string]any{"state": state.String(), "delivered": delivered})
	return nil
}

// ParseLockCommand decodes a lock command payload.
func ParseLockCommand(payload []byte) (sesame.LockState, error) {
	text := strings.TrimSpace(string(payload))
	if strings.HasPrefix(text, "{") {
		var body struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal([]byte(text), &body); err != nil {
			return 0, fmt.Errorf("%w: %w", sesame.ErrInvalidLockState, err)
		}
		text = body.State
	}
	return sesame.ParseLockState(text)
}
