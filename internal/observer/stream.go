package observer

import (
	"time"

	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

// Stream channels.
const (
	ChannelTriggerEvent = "trigger.event"
	ChannelTriggerState = "trigger.state"
	ChannelLockState    = "lock.state"
	ChannelServerStatus = "server.status"
)

// Broadcaster fans a payload out to stream subscribers of a channel. The
// WebSocket hub implements it; Broadcast must not block.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Stream forwards notifications to live stream clients.
type Stream struct {
	sesame.NopObserver

	hub Broadcaster
	now func() time.Time
}

var _ sesame.Observer = (*Stream)(nil)

// NewStream creates a Stream over hub.
func NewStream(hub Broadcaster) *Stream {
	return &Stream{hub: hub, now: time.Now}
}

func (s *Stream) TriggerEvent(t sesame.TriggerSnapshot, e sesame.Event) {
	s.hub.Broadcast(ChannelTriggerEvent, newTriggerEventMessage(t, e))
	s.TriggerConnection(t)
}

func (s *Stream) TriggerConnection(t sesame.TriggerSnapshot) {
	s.hub.Broadcast(ChannelTriggerState, newTriggerStateMessage(t, s.now()))
}

func (s *Stream) LockState(l sesame.LockSnapshot) {
	s.hub.Broadcast(ChannelLockState, newLockStateMessage(l, s.now()))
}

func (s *Stream) Registration(registered bool) {
	s.hub.Broadcast(ChannelServerStatus, newServerStatusMessage(sesame.Status{Registered: registered}, s.now()))
}
