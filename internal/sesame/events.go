package sesame

import (
	"math"
	"time"
)

// ItemCode is the command item decoded by the engine from a peer frame.
// Values other than the four named constants are passed through untouched
// and map to no event.
type ItemCode int

const (
	ItemNone ItemCode = iota
	ItemLock
	ItemUnlock
	ItemDoorOpen
	ItemDoorClosed
)

var itemNames = map[ItemCode]string{
	ItemNone:       "none",
	ItemLock:       "lock",
	ItemUnlock:     "unlock",
	ItemDoorOpen:   "door_open",
	ItemDoorClosed: "door_closed",
}

// String returns the engine-facing item name.
func (c ItemCode) String() string {
	if n, ok := itemNames[c]; ok {
		return n
	}
	return "unknown"
}

// ParseItemCode maps an engine item name to an ItemCode. Unrecognised names
// yield ItemNone and false.
func ParseItemCode(name string) (ItemCode, bool) {
	for c, n := range itemNames {
		if n == name && c != ItemNone {
			return c, true
		}
	}
	return ItemNone, false
}

// EventKind names an event forwarded to trigger automations and observers.
type EventKind string

const (
	EventLock   EventKind = "lock"
	EventUnlock EventKind = "unlock"
	EventOpen   EventKind = "open"
	EventClose  EventKind = "close"
)

// EventKinds lists every event a Trigger can fire.
var EventKinds = []EventKind{EventOpen, EventClose, EventLock, EventUnlock}

// EventFor maps an item code to its event. ok is false for codes that
// produce no event.
func EventFor(code ItemCode) (kind EventKind, ok bool) {
	switch code {
	case ItemLock:
		return EventLock, true
	case ItemUnlock:
		return EventUnlock, true
	case ItemDoorOpen:
		return EventOpen, true
	case ItemDoorClosed:
		return EventClose, true
	default:
		return "", false
	}
}

// Event is a command forwarded to the automations of one Trigger.
type Event struct {
	Trigger  string
	Address  PeerAddress
	Kind     EventKind
	Tag      string
	TagType  float64 // NaN when the peer reported none
	Received time.Time
}

// HasTagType reports whether the peer reported a numeric parameter.
func (e Event) HasTagType() bool {
	return !math.IsNaN(e.TagType)
}

// ResultCode is returned to the engine for an inbound command.
type ResultCode uint8

const (
	ResultSuccess ResultCode = iota
	ResultUnknown
)

// String returns the result name.
func (r ResultCode) String() string {
	if r == ResultSuccess {
		return "success"
	}
	return "unknown"
}

// NoTagType is the value recorded when a command carries no numeric
// parameter.
func NoTagType() float64 { return math.NaN() }
