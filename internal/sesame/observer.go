package sesame

import "time"

// TriggerSnapshot is a copy of a Trigger's observable state.
type TriggerSnapshot struct {
	Name             string      `json:"name"`
	Address          PeerAddress `json:"address"`
	Kind             TriggerKind `json:"kind"`
	LockID           string      `json:"lock_id,omitempty"`
	HistoryTag       string      `json:"history_tag"`
	HistoryTagType   *float64    `json:"history_tag_type"`
	LastEvent        EventKind   `json:"last_event,omitempty"`
	LastEventAt      time.Time   `json:"last_event_at,omitzero"`
	Connected        bool        `json:"connected"`
	DisconnectReason int         `json:"disconnect_reason"`
	PublishTag       bool        `json:"-"`
	PublishConnected bool        `json:"-"`
}

// Observer receives core notifications. Methods are called on the dispatch
// goroutine and must not block; hand work off to another goroutine instead.
type Observer interface {
	// TriggerEvent is called for every forwarded event.
	TriggerEvent(t TriggerSnapshot, e Event)
	// TriggerConnection is called on every connect and disconnect.
	TriggerConnection(t TriggerSnapshot)
	// LockState is called when a lock entity changes state.
	LockState(l LockSnapshot)
	// Registration is called when the server registration changes.
	Registration(registered bool)
	// StatusSent is called after each status frame send attempt.
	StatusSent(addr PeerAddress, f LockStatusFrame, err error)
	// UnlistedCommand is called for commands from unconfigured peers.
	UnlistedCommand(addr PeerAddress, item ItemCode)
}

// NopObserver implements Observer with no-ops. Embed it to implement a
// subset of the methods.
type NopObserver struct{}

func (NopObserver) TriggerEvent(TriggerSnapshot, Event)            {}
func (NopObserver) TriggerConnection(TriggerSnapshot)              {}
func (NopObserver) LockState(LockSnapshot)                         {}
func (NopObserver) Registration(bool)                              {}
func (NopObserver) StatusSent(PeerAddress, LockStatusFrame, error) {}
func (NopObserver) UnlistedCommand(PeerAddress, ItemCode)          {}

// Observers fans notifications out to several observers in order.
type Observers []Observer

func (o Observers) TriggerEvent(t TriggerSnapshot, e Event) {
	for _, ob := range o {
		ob.TriggerEvent(t, e)
	}
}

func (o Observers) TriggerConnection(t TriggerSnapshot) {
	for _, ob := range o {
		ob.TriggerConnection(t)
	}
}

func (o Observers) LockState(l LockSnapshot) {
	for _, ob := range o {
		ob.LockState(l)
	}
}

func (o Observers) Registration(registered bool) {
	for _, ob := range o {
		ob.Registration(registered)
	}
}

func (o Observers) StatusSent(addr PeerAddress, f LockStatusFrame, err error) {
	for _, ob := range o {
		ob.StatusSent(addr, f, err)
	}
}

func (o Observers) UnlistedCommand(addr PeerAddress, item ItemCode) {
	for _, ob := range o {
		ob.UnlistedCommand(addr, item)
	}
}
