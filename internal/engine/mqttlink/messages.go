package mqttlink

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

// Peer identifies a remote device on the wire.
type Peer struct {
	// Address is colon separated hex, e.g. "c1:22:33:44:55:66".
	Address string `json:"address"`

	// AddressType is "random" (default) or "public".
	AddressType string `json:"address_type,omitempty"`
}

func peerOf(addr sesame.PeerAddress) Peer {
	return Peer{Address: addr.String(), AddressType: addr.Type.String()}
}

// PeerAddress decodes the wire form.
func (p Peer) PeerAddress() (sesame.PeerAddress, error) {
	addr, err := sesame.ParseAddress(p.Address)
	if err != nil {
		return sesame.PeerAddress{}, err
	}
	switch p.AddressType {
	case "", "random":
	case "public":
		addr.Type = sesame.AddressPublic
	default:
		return sesame.PeerAddress{}, fmt.Errorf("%w: address type %q", ErrInvalidMessage, p.AddressType)
	}
	return addr, nil
}

// =============================================================================
// Requests (server → daemon)
// =============================================================================

// BeginRequest starts the daemon as a SESAME 5 device.
// Topic: {prefix}/request/begin
type BeginRequest struct {
	Timestamp   time.Time `json:"timestamp"`
	UUID        string    `json:"uuid"`
	MaxSessions int       `json:"max_sessions"`

	// Secret is the stored pairing secret, if any.
	Secret string `json:"secret,omitempty"`
}

// AdvertiseRequest toggles advertising.
// Topic: {prefix}/request/advertise
type AdvertiseRequest struct {
	Timestamp time.Time `json:"timestamp"`
	Enabled   bool      `json:"enabled"`
}

// RegisterRequest installs the pairing secret.
// Topic: {prefix}/request/register
type RegisterRequest struct {
	Timestamp time.Time `json:"timestamp"`
	Secret    string    `json:"secret"`
}

// StatusRequest sends a mechanism status frame. A nil Peer addresses every
// session.
// Topic: {prefix}/request/status
type StatusRequest struct {
	Timestamp time.Time              `json:"timestamp"`
	Peer      *Peer                  `json:"peer,omitempty"`
	Frame     sesame.LockStatusFrame `json:"frame"`

	// Battery is reported as full; the server has no battery.
	Battery int `json:"battery"`
}

// fullBattery is the battery percentage reported in every status frame.
const fullBattery = 100

// DisconnectRequest drops a peer session.
// Topic: {prefix}/request/disconnect
type DisconnectRequest struct {
	Timestamp time.Time `json:"timestamp"`
	Peer
}

// CommandResponse reports how a decoded command was handled.
// Topic: {prefix}/response/command
type CommandResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Seq       uint64    `json:"seq"`
	Peer
	Result string `json:"result"`
}

// Result names.
const (
	ResultSuccess = "success"
	ResultUnknown = "unknown"
)

func resultName(r sesame.ResultCode) string {
	if r == sesame.ResultSuccess {
		return ResultSuccess
	}
	return ResultUnknown
}

// =============================================================================
// Events (daemon → server)
// =============================================================================

// RegistrationEvent reports a completed pairing.
// Topic: {prefix}/event/registration
type RegistrationEvent struct {
	Peer
	Secret string `json:"secret"`
}

// CommandEvent carries a command decoded from a peer frame.
// Topic: {prefix}/event/command
type CommandEvent struct {
	Seq uint64 `json:"seq"`
	Peer

	// Item is the decoded item name: lock, unlock, door_open, door_closed.
	Item string `json:"item"`

	// Code is the raw item code. It is logged, never mapped: the daemon
	// names every item the server understands.
	Code *int `json:"code,omitempty"`

	// Tag is the history tag sent with the command.
	Tag string `json:"tag"`

	// TagType is the numeric command parameter, absent when none was sent.
	TagType *float64 `json:"tag_type,omitempty"`
}

// ItemCode resolves the item name. Unknown names yield sesame.ItemNone
// whatever the raw code.
func (e CommandEvent) ItemCode() sesame.ItemCode {
	code, _ := sesame.ParseItemCode(e.Item)
	return code
}

// TagTypeValue returns TagType, or NaN when absent.
func (e CommandEvent) TagTypeValue() float64 {
	if e.TagType == nil {
		return math.NaN()
	}
	return *e.TagType
}

// ConnectEvent reports a new session.
// Topic: {prefix}/event/connect
type ConnectEvent struct {
	Peer
}

// DisconnectEvent reports a closed session.
// Topic: {prefix}/event/disconnect
type DisconnectEvent struct {
	Peer
	Reason int `json:"reason"`
}

// ReasonEngineLost is the disconnect reason passed to OnDisconnect for
// sessions dropped because the daemon stopped being ready.
const ReasonEngineLost = -1

// DaemonStatus is the daemon's retained readiness report.
// Topic: {prefix}/status
type DaemonStatus struct {
	Ready      bool `json:"ready"`
	Registered bool `json:"registered"`
}

func decode(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return nil
}
