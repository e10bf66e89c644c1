package mqttlink

import "strings"

// DefaultTopicPrefix is the engine topic root when none is configured.
const DefaultTopicPrefix = "graylogic/sesame/engine"

// Request names.
const (
	RequestBegin      = "begin"
	RequestAdvertise  = "advertise"
	RequestRegister   = "register"
	RequestStatus     = "status"
	RequestDisconnect = "disconnect"
)

// Event names.
const (
	EventRegistration = "registration"
	EventCommand      = "command"
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
)

// Topics builds engine topic names.
type Topics struct {
	prefix string
}

// NewTopics returns builders rooted at prefix, or DefaultTopicPrefix when
// prefix is empty.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Request returns the topic for a request to the daemon.
func (t Topics) Request(name string) string {
	return t.prefix + "/request/" + name
}

// Response returns the topic for a response to a daemon event.
func (t Topics) Response(name string) string {
	return t.prefix + "/response/" + name
}

// Event returns the topic for a daemon event.
func (t Topics) Event(name string) string {
	return t.prefix + "/event/" + name
}

// AllEvents matches every daemon event.
func (t Topics) AllEvents() string {
	return t.prefix + "/event/+"
}

// Status is the daemon readiness topic.
func (t Topics) Status() string {
	return t.prefix + "/status"
}

// eventName extracts the event name from an event topic.
func (t Topics) eventName(topic string) (string, bool) {
	name, ok := strings.CutPrefix(topic, t.prefix+"/event/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
