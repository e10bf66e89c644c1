package observer

import (
	"time"

	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

// Payloads shared by the MQTT topics and the WebSocket stream.

// TriggerEventMessage is published once per forwarded event.
type TriggerEventMessage struct {
	Trigger   string           `json:"trigger"`
	Address   string           `json:"address"`
	Event     sesame.EventKind `json:"event"`
	Tag       *string          `json:"history_tag,omitempty"`
	TagType   *float64         `json:"history_tag_type,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// TriggerStateMessage is the retained observable state of a trigger.
// Fields a trigger does not publish are omitted.
type TriggerStateMessage struct {
	Name             string             `json:"name"`
	Kind             sesame.TriggerKind `json:"kind"`
	LockID           string             `json:"lock_id,omitempty"`
	HistoryTag       *string            `json:"history_tag,omitempty"`
	HistoryTagType   *float64           `json:"history_tag_type,omitempty"`
	Connected        *bool              `json:"connected,omitempty"`
	DisconnectReason *int               `json:"disconnect_reason,omitempty"`
	Timestamp        time.Time          `json:"timestamp"`
}

// LockStateMessage is the retained state of a lock entity.
type LockStateMessage struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	State     sesame.LockState `json:"state"`
	Shared    bool             `json:"shared"`
	Trigger   string           `json:"trigger,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// ServerStatusMessage is the retained server status.
type ServerStatusMessage struct {
	Registered bool      `json:"registered"`
	Failed     bool      `json:"failed"`
	Running    bool      `json:"running"`
	Timestamp  time.Time `json:"timestamp"`
}

func newTriggerEventMessage(t sesame.TriggerSnapshot, e sesame.Event) TriggerEventMessage {
	msg := TriggerEventMessage{
		Trigger:   t.Name,
		Address:   e.Address.String(),
		Event:     e.Kind,
		Timestamp: e.Received.UTC(),
	}
	if t.PublishTag {
		tag := e.Tag
		msg.Tag = &tag
		if e.HasTagType() {
			tt := e.TagType
			msg.TagType = &tt
		}
	}
	return msg
}

func newTriggerStateMessage(t sesame.TriggerSnapshot, now time.Time) TriggerStateMessage {
	msg := TriggerStateMessage{
		Name:      t.Name,
		Kind:      t.Kind,
		LockID:    t.LockID,
		Timestamp: now.UTC(),
	}
	if t.PublishTag {
		tag := t.HistoryTag
		msg.HistoryTag = &tag
		msg.HistoryTagType = t.HistoryTagType
	}
	if t.PublishConnected {
		connected := t.Connected
		msg.Connected = &connected
		if !connected {
			reason := t.DisconnectReason
			msg.DisconnectReason = &reason
		}
	}
	return msg
}

func newLockStateMessage(l sesame.LockSnapshot, now time.Time) LockStateMessage {
	return LockStateMessage{
		ID:        l.ID,
		Name:      l.Name,
		State:     l.State,
		Shared:    l.Shared,
		Trigger:   l.Trigger,
		Timestamp: now.UTC(),
	}
}

func newServerStatusMessage(st sesame.Status, now time.Time) ServerStatusMessage {
	return ServerStatusMessage{
		Registered: st.Registered,
		Failed:     st.Failed,
		Running:    st.Running,
		Timestamp:  now.UTC(),
	}
}
