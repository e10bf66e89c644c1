package sesame

import (
	"fmt"
	"math"
	"time"
)

// TriggerKind selects where a Trigger's lock state comes from. It is fixed
// at configuration time.
type TriggerKind uint8

const (
	// TriggerShared mirrors the server-wide shared lock state.
	TriggerShared TriggerKind = iota
	// TriggerBound owns a private LockEntity.
	TriggerBound
)

// String returns the kind name.
func (k TriggerKind) String() string {
	if k == TriggerBound {
		return "bound"
	}
	return "shared"
}

// MarshalText implements encoding.TextMarshaler.
func (k TriggerKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// TriggerConfig describes one configured peer.
type TriggerConfig struct {
	Name    string
	Address PeerAddress
	// Lock, when set, binds a private lock entity to the trigger.
	Lock *LockEntity
	// PublishHistoryTag and PublishConnection control which observable
	// values are published for this trigger.
	PublishHistoryTag bool
	PublishConnection bool
}

// Trigger is the logical endpoint for one configured peer. All fields are
// owned by the dispatch goroutine.
type Trigger struct {
	index   int
	name    string
	address PeerAddress
	kind    TriggerKind
	lock    *LockEntity

	historyTag       string
	tagType          float64
	lastEvent        EventKind
	lastEventAt      time.Time
	connected        bool
	disconnectReason int

	publishTag       bool
	publishConnected bool

	automations map[EventKind][]func(Event)
}

func newTrigger(index int, cfg TriggerConfig) *Trigger {
	t := &Trigger{
		index:            index,
		name:             cfg.Name,
		address:          cfg.Address,
		kind:             TriggerShared,
		lock:             cfg.Lock,
		tagType:          math.NaN(),
		publishTag:       cfg.PublishHistoryTag,
		publishConnected: cfg.PublishConnection,
		automations:      make(map[EventKind][]func(Event)),
	}
	if cfg.Lock != nil {
		t.kind = TriggerBound
	}
	if t.name == "" {
		t.name = cfg.Address.String()
	}
	return t
}

// Name returns the trigger name.
func (t *Trigger) Name() string { return t.name }

// Address returns the peer address.
func (t *Trigger) Address() PeerAddress { return t.address }

// Kind returns whether the trigger is bound or mirrors the shared state.
func (t *Trigger) Kind() TriggerKind { return t.kind }

// Lock returns the bound lock entity, or nil for a shared trigger.
func (t *Trigger) Lock() *LockEntity { return t.lock }

// HistoryTag returns the last tag reported by the peer.
func (t *Trigger) HistoryTag() string { return t.historyTag }

// TagType returns the last numeric parameter, NaN when none was reported.
func (t *Trigger) TagType() float64 { return t.tagType }

// Connected reports the connectivity from the last connect/disconnect.
func (t *Trigger) Connected() bool { return t.connected }

// DisconnectReason returns the reason code of the last disconnect.
func (t *Trigger) DisconnectReason() int { return t.disconnectReason }

// On registers an automation for a named event on this trigger only.
// Configuration-time only.
func (t *Trigger) On(kind EventKind, fn func(Event)) {
	if fn == nil {
		return
	}
	t.automations[kind] = append(t.automations[kind], fn)
}

// Invoke translates an inbound command into an event, records the tag and
// fires the automations registered for it. Codes that map to no event
// leave the trigger untouched and return ResultUnknown with ok false.
func (t *Trigger) Invoke(item ItemCode, tag string, tagType float64, now time.Time) (ev Event, result ResultCode, ok bool) {
	kind, ok := EventFor(item)
	if !ok {
		return Event{}, ResultUnknown, false
	}
	t.historyTag = tag
	t.tagType = tagType
	t.lastEvent = kind
	t.lastEventAt = now

	ev = Event{
		Trigger:  t.name,
		Address:  t.address,
		Kind:     kind,
		Tag:      tag,
		TagType:  tagType,
		Received: now,
	}
	for _, fn := range t.automations[kind] {
		fn(ev)
	}
	return ev, ResultSuccess, true
}

// setConnected applies a connectivity transition. The reason is kept for
// diagnostics only.
func (t *Trigger) setConnected(connected bool, reason int) {
	t.connected = connected
	if !connected {
		t.disconnectReason = reason
	}
}

// Snapshot copies the observable state.
func (t *Trigger) Snapshot() TriggerSnapshot {
	s := TriggerSnapshot{
		Name:             t.name,
		Address:          t.address,
		Kind:             t.kind,
		HistoryTag:       t.historyTag,
		LastEvent:        t.lastEvent,
		LastEventAt:      t.lastEventAt,
		Connected:        t.connected,
		DisconnectReason: t.disconnectReason,
		PublishTag:       t.publishTag,
		PublishConnected: t.publishConnected,
	}
	if !math.IsNaN(t.tagType) {
		v := t.tagType
		s.HistoryTagType = &v
	}
	if t.lock != nil {
		s.LockID = t.lock.ID
	}
	return s
}

func (t *Trigger) String() string {
	return fmt.Sprintf("%s(%s)", t.name, t.address)
}
