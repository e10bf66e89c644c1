package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

// Measurements written by the server.
const (
	MeasurementTrigger = "sesame_trigger"
	MeasurementLock    = "sesame_lock"
)

// TriggerEventPoint records one forwarded trigger event.
//
//	sesame_trigger,trigger=front-door,event=unlock history_tag="alice",history_tag_type=1,connected=true
func TriggerEventPoint(t sesame.TriggerSnapshot, e sesame.Event) *write.Point {
	fields := map[string]any{
		"connected": t.Connected,
	}
	if t.PublishTag {
		fields["history_tag"] = e.Tag
	}
	if e.HasTagType() {
		fields["history_tag_type"] = e.TagType
	}
	return write.NewPoint(MeasurementTrigger,
		map[string]string{
			"trigger": t.Name,
			"event":   string(e.Kind),
		},
		fields,
		timestamp(e.Received),
	)
}

// TriggerConnectionPoint records a connect or disconnect of a trigger.
// The event tag is "connect" or "disconnect".
func TriggerConnectionPoint(t sesame.TriggerSnapshot, at time.Time) *write.Point {
	event := "disconnect"
	fields := map[string]any{"connected": t.Connected}
	if t.Connected {
		event = "connect"
	} else {
		fields["disconnect_reason"] = int64(t.DisconnectReason)
	}
	return write.NewPoint(MeasurementTrigger,
		map[string]string{
			"trigger": t.Name,
			"event":   event,
		},
		fields,
		timestamp(at),
	)
}

// LockPoint records the state of a lock entity.
func LockPoint(l sesame.LockSnapshot, at time.Time) *write.Point {
	kind := "bound"
	if l.Shared {
		kind = "shared"
	}
	return write.NewPoint(MeasurementLock,
		map[string]string{
			"lock": l.ID,
			"kind": kind,
		},
		map[string]any{
			"locked": l.State == sesame.LockLocked,
			"state":  l.State.String(),
		},
		timestamp(at),
	)
}

func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
