package observer

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

// Metrics exports core activity as Prometheus metrics.
type Metrics struct {
	sesame.NopObserver

	commands  *prometheus.CounterVec
	unlisted  prometheus.Counter
	sends     *prometheus.CounterVec
	connected *prometheus.GaugeVec
	locked    *prometheus.GaugeVec
	reg       prometheus.Gauge
}

var _ sesame.Observer = (*Metrics)(nil)

// Send results.
const (
	sendOK        = "ok"
	sendNoSession = "no_session"
	sendFailed    = "failed"
)

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sesame_commands_total",
			Help: "Commands received from listed triggers, by event",
		}, []string{"trigger", "event"}),
		unlisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sesame_unlisted_commands_total",
			Help: "Commands received from peers that are not configured triggers",
		}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sesame_status_sends_total",
			Help: "Mechanism status sends to peers, by result",
		}, []string{"result"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sesame_trigger_connected",
			Help: "Whether the trigger has a live session (1) or not (0)",
		}, []string{"trigger"}),
		locked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sesame_lock_locked",
			Help: "Whether the lock entity is locked (1) or not (0)",
		}, []string{"lock"}),
		reg: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sesame_registered",
			Help: "Whether the server holds a pairing secret",
		}),
	}
	reg.MustRegister(m.commands, m.unlisted, m.sends, m.connected, m.locked, m.reg)
	return m
}

func (m *Metrics) TriggerEvent(t sesame.TriggerSnapshot, e sesame.Event) {
	m.commands.WithLabelValues(t.Name, string(e.Kind)).Inc()
}

func (m *Metrics) TriggerConnection(t sesame.TriggerSnapshot) {
	m.connected.WithLabelValues(t.Name).Set(boolValue(t.Connected))
}

func (m *Metrics) LockState(l sesame.LockSnapshot) {
	m.locked.WithLabelValues(l.ID).Set(boolValue(l.State == sesame.LockLocked))
}

func (m *Metrics) Registration(registered bool) {
	m.reg.Set(boolValue(registered))
}

func (m *Metrics) StatusSent(_ sesame.PeerAddress, _ sesame.LockStatusFrame, err error) {
	result := sendOK
	switch {
	case errors.Is(err, sesame.ErrNoSession):
		result = sendNoSession
	case err != nil:
		result = sendFailed
	}
	m.sends.WithLabelValues(result).Inc()
}

func (m *Metrics) UnlistedCommand(sesame.PeerAddress, sesame.ItemCode) {
	m.unlisted.Inc()
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
