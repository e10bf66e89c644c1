package observer

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-sesame/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

// PointWriter queues points for a time series store. *influxdb.Client
// satisfies it; its writes never block.
type PointWriter interface {
	WritePoint(p *write.Point)
}

// InfluxRecorder writes trigger and lock telemetry points.
type InfluxRecorder struct {
	sesame.NopObserver

	writer PointWriter
	now    func() time.Time
}

var _ sesame.Observer = (*InfluxRecorder)(nil)

// NewInfluxRecorder creates a recorder writing to w.
func NewInfluxRecorder(w PointWriter) *InfluxRecorder {
	return &InfluxRecorder{writer: w, now: time.Now}
}

func (r *InfluxRecorder) TriggerEvent(t sesame.TriggerSnapshot, e sesame.Event) {
	r.writer.WritePoint(influxdb.TriggerEventPoint(t, e))
}

func (r *InfluxRecorder) TriggerConnection(t sesame.TriggerSnapshot) {
	r.writer.WritePoint(influxdb.TriggerConnectionPoint(t, r.now()))
}

func (r *InfluxRecorder) LockState(l sesame.LockSnapshot) {
	r.writer.WritePoint(influxdb.LockPoint(l, r.now()))
}
