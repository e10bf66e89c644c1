package mqtt

import (
	"strings"
)

// DefaultTopicPrefix is the observation topic root when none is configured.
const DefaultTopicPrefix = "graylogic/sesame"

// Topics builds observation topic names under a prefix.
//
//	topics := mqtt.NewTopics("graylogic/sesame")
//	topics.TriggerEvent("front-door")
//	// graylogic/sesame/trigger/front-door/event
type Topics struct {
	prefix string
}

// NewTopics returns builders rooted at prefix. Leading and trailing
// slashes are trimmed; an empty prefix selects DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

func (t Topics) join(parts ...string) string {
	return t.Prefix() + "/" + strings.Join(parts, "/")
}

// =============================================================================
// Server Topics
// =============================================================================

// Availability is the connection liveness topic, carrying the LWT.
func (t Topics) Availability() string {
	return t.join("availability")
}

// ServerStatus carries the registration and failure flags.
func (t Topics) ServerStatus() string {
	return t.join("server", "status")
}

// =============================================================================
// Trigger Topics
// =============================================================================

// TriggerEvent carries one message per forwarded trigger event.
func (t Topics) TriggerEvent(name string) string {
	return t.join("trigger", segment(name), "event")
}

// TriggerState carries the retained observable state of a trigger.
func (t Topics) TriggerState(name string) string {
	return t.join("trigger", segment(name), "state")
}

// AllTriggerEvents matches every trigger event topic.
func (t Topics) AllTriggerEvents() string {
	return t.join("trigger", "+", "event")
}

// =============================================================================
// Lock Topics
// =============================================================================

// LockState carries the retained state of a lock entity.
func (t Topics) LockState(id string) string {
	return t.join("lock", segment(id), "state")
}

// LockSet receives lock commands for a lock entity.
func (t Topics) LockSet(id string) string {
	return t.join("lock", segment(id), "set")
}

// AllLockSets matches every lock command topic.
func (t Topics) AllLockSets() string {
	return t.join("lock", "+", "set")
}

// LockIDFromSetTopic extracts the lock id from a LockSet topic.
func (t Topics) LockIDFromSetTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix()+"/lock/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/set")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// AllTopics matches everything under the prefix.
func (t Topics) AllTopics() string {
	return t.join("#")
}

// segment makes a name safe for use as a single topic level.
func segment(name string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(name)
}
