package sesametest

import (
	"sync"

	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

// Observer records every notification it receives.
type Observer struct {
	mu            sync.Mutex
	events        []sesame.Event
	connections   []sesame.TriggerSnapshot
	locks         []sesame.LockSnapshot
	registrations []bool
	sends         int
	sendErrors    int
	unlisted      int
}

// TriggerEvent implements sesame.Observer.
func (o *Observer) TriggerEvent(_ sesame.TriggerSnapshot, e sesame.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

// TriggerConnection implements sesame.Observer.
func (o *Observer) TriggerConnection(t sesame.TriggerSnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.connections = append(o.connections, t)
}

// LockState implements sesame.Observer.
func (o *Observer) LockState(l sesame.LockSnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.locks = append(o.locks, l)
}

// Registration implements sesame.Observer.
func (o *Observer) Registration(registered bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.registrations = append(o.registrations, registered)
}

// StatusSent implements sesame.Observer.
func (o *Observer) StatusSent(_ sesame.PeerAddress, _ sesame.LockStatusFrame, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sends++
	if err != nil {
		o.sendErrors++
	}
}

// UnlistedCommand implements sesame.Observer.
func (o *Observer) UnlistedCommand(sesame.PeerAddress, sesame.ItemCode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unlisted++
}

// Events returns the recorded events.
func (o *Observer) Events() []sesame.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]sesame.Event(nil), o.events...)
}

// Connections returns the recorded connection snapshots.
func (o *Observer) Connections() []sesame.TriggerSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]sesame.TriggerSnapshot(nil), o.connections...)
}

// Locks returns the recorded lock snapshots.
func (o *Observer) Locks() []sesame.LockSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]sesame.LockSnapshot(nil), o.locks...)
}

// Registrations returns the recorded registration changes.
func (o *Observer) Registrations() []bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]bool(nil), o.registrations...)
}

// Unlisted returns the number of unlisted commands seen.
func (o *Observer) Unlisted() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.unlisted
}

// SendErrors returns the number of failed sends seen.
func (o *Observer) SendErrors() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sendErrors
}
