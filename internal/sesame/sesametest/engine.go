// Package sesametest provides in-memory fakes of the sesame engine and
// secret store for tests.
package sesametest

import (
	"bytes"
	"context"
	"runtime"
	"strconv"
	"sync"

	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

// SentFrame records one SendStatus call. Dest is nil for a send to every
// session.
type SentFrame struct {
	Dest  *sesame.PeerAddress
	Frame sesame.LockStatusFrame
}

// Engine is an in-memory sesame.Engine. Simulate* methods deliver engine
// callbacks the way a real engine would, from the caller's goroutine.
//
// Handlers must not call back into the engine. A call to SendStatus,
// Disconnect, HasSession, StartAdvertising or StopAdvertising made from
// inside a callback is recorded in Reentries.
type Engine struct {
	mu           sync.Mutex
	handlers     sesame.Handlers
	sessions     map[sesame.PeerAddress]bool
	registered   bool
	secret       sesame.Secret
	uuid         string
	begun        bool
	advertising  bool
	updates      int
	sent         []SentFrame
	disconnected []sesame.PeerAddress
	sendErr      map[sesame.PeerAddress]error
	callback     uint64 // goroutine delivering a callback, 0 when none
	reentries    []string

	// Errors returned by the corresponding calls when set.
	BeginErr         error
	AdvertiseErr     error
	SetRegisteredErr error
}

// NewEngine returns an engine with no sessions.
func NewEngine() *Engine {
	return &Engine{
		sessions: make(map[sesame.PeerAddress]bool),
		sendErr:  make(map[sesame.PeerAddress]error),
	}
}

// Begin implements sesame.Engine.
func (e *Engine) Begin(_ context.Context, uuid string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.BeginErr != nil {
		return e.BeginErr
	}
	e.begun = true
	e.uuid = uuid
	return nil
}

// Update implements sesame.Engine.
func (e *Engine) Update() {
	e.mu.Lock()
	e.updates++
	e.mu.Unlock()
}

// StartAdvertising implements sesame.Engine.
func (e *Engine) StartAdvertising() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkReentry("StartAdvertising")
	if e.AdvertiseErr != nil {
		return e.AdvertiseErr
	}
	e.advertising = true
	return nil
}

// StopAdvertising implements sesame.Engine.
func (e *Engine) StopAdvertising() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkReentry("StopAdvertising")
	e.advertising = false
	return nil
}

// SendStatus implements sesame.Engine.
func (e *Engine) SendStatus(dest *sesame.PeerAddress, f sesame.LockStatusFrame) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkReentry("SendStatus")
	if dest != nil {
		if err := e.sendErr[*dest]; err != nil {
			return err
		}
		d := *dest
		dest = &d
	}
	e.sent = append(e.sent, SentFrame{Dest: dest, Frame: f})
	return nil
}

// Disconnect implements sesame.Engine. The session is dropped but no
// disconnect callback is delivered; use SimulateDisconnect for that.
func (e *Engine) Disconnect(addr sesame.PeerAddress) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkReentry("Disconnect")
	e.disconnected = append(e.disconnected, addr)
	delete(e.sessions, addr)
	return nil
}

// HasSession implements sesame.Engine.
func (e *Engine) HasSession(addr sesame.PeerAddress) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkReentry("HasSession")
	return e.sessions[addr]
}

// IsRegistered implements sesame.Engine.
func (e *Engine) IsRegistered() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registered
}

// SetRegistered implements sesame.Engine.
func (e *Engine) SetRegistered(secret sesame.Secret) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.SetRegisteredErr != nil {
		return e.SetRegisteredErr
	}
	e.registered = true
	e.secret = secret
	return nil
}

// SetHandlers implements sesame.Engine.
func (e *Engine) SetHandlers(h sesame.Handlers) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = h
}

// ============================================================
// Simulation
// ============================================================

func (e *Engine) currentHandlers() sesame.Handlers {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handlers
}

// deliver runs fn as a callback from the calling goroutine.
func (e *Engine) deliver(fn func()) {
	e.mu.Lock()
	e.callback = goroutineID()
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.callback = 0
		e.mu.Unlock()
	}()
	fn()
}

// checkReentry records method when it is called from inside a callback.
// Callers hold mu.
func (e *Engine) checkReentry(method string) {
	if e.callback != 0 && e.callback == goroutineID() {
		e.reentries = append(e.reentries, method)
	}
}

// goroutineID parses the current goroutine's ID from its stack header,
// "goroutine 42 [running]:".
func goroutineID() uint64 {
	var buf [64]byte
	fields := bytes.Fields(buf[:runtime.Stack(buf[:], false)])
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseUint(string(fields[1]), 10, 64) //nolint:errcheck // 0 on a malformed header
	return id
}

// SimulateConnect opens a session with addr and fires OnConnect.
func (e *Engine) SimulateConnect(addr sesame.PeerAddress) {
	e.mu.Lock()
	e.sessions[addr] = true
	e.mu.Unlock()
	if h := e.currentHandlers(); h.OnConnect != nil {
		e.deliver(func() { h.OnConnect(addr) })
	}
}

// SimulateDisconnect closes the session with addr and fires OnDisconnect.
func (e *Engine) SimulateDisconnect(addr sesame.PeerAddress, reason int) {
	e.mu.Lock()
	delete(e.sessions, addr)
	e.mu.Unlock()
	if h := e.currentHandlers(); h.OnDisconnect != nil {
		e.deliver(func() { h.OnDisconnect(addr, reason) })
	}
}

// SimulateCommand fires OnCommand and returns its result.
func (e *Engine) SimulateCommand(addr sesame.PeerAddress, item sesame.ItemCode, tag string, tagType float64) sesame.ResultCode {
	if h := e.currentHandlers(); h.OnCommand != nil {
		var result sesame.ResultCode
		e.deliver(func() { result = h.OnCommand(addr, item, tag, tagType) })
		return result
	}
	return sesame.ResultUnknown
}

// SimulateRegistration marks the engine registered and fires
// OnRegistration when a handler is installed. It reports whether the
// handler was called.
func (e *Engine) SimulateRegistration(addr sesame.PeerAddress, secret sesame.Secret) bool {
	e.mu.Lock()
	e.registered = true
	e.secret = secret
	e.mu.Unlock()
	if h := e.currentHandlers(); h.OnRegistration != nil {
		e.deliver(func() { h.OnRegistration(addr, secret) })
		return true
	}
	return false
}

// SetSendError makes sends to addr fail with err. A nil err clears it.
func (e *Engine) SetSendError(addr sesame.PeerAddress, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.sendErr, addr)
		return
	}
	e.sendErr[addr] = err
}

// ============================================================
// Inspection
// ============================================================

// Sent returns a copy of every successful send.
func (e *Engine) Sent() []SentFrame {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SentFrame, len(e.sent))
	copy(out, e.sent)
	return out
}

// SentTo returns the frames successfully sent to addr.
func (e *Engine) SentTo(addr sesame.PeerAddress) []sesame.LockStatusFrame {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []sesame.LockStatusFrame
	for _, s := range e.sent {
		if s.Dest != nil && *s.Dest == addr {
			out = append(out, s.Frame)
		}
	}
	return out
}

// ClearSent forgets recorded sends.
func (e *Engine) ClearSent() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = nil
}

// Disconnected returns the addresses passed to Disconnect.
func (e *Engine) Disconnected() []sesame.PeerAddress {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]sesame.PeerAddress, len(e.disconnected))
	copy(out, e.disconnected)
	return out
}

// Begun returns the UUID passed to Begin and whether Begin succeeded.
func (e *Engine) Begun() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.uuid, e.begun
}

// Advertising reports whether advertising is on.
func (e *Engine) Advertising() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.advertising
}

// HasRegistrationHandler reports whether OnRegistration is installed.
func (e *Engine) HasRegistrationHandler() bool {
	return e.currentHandlers().OnRegistration != nil
}

// Updates returns the number of Update calls.
func (e *Engine) Updates() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updates
}

// Reentries returns the engine methods called from inside a callback, in
// call order.
func (e *Engine) Reentries() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.reentries))
	copy(out, e.reentries)
	return out
}
