package observer

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-sesame/internal/audit"
	"github.com/nerrad567/gray-logic-sesame/internal/history"
	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

const storeTimeout = 5 * time.Second

// HistoryRecorder stores every forwarded event in the history repository.
type HistoryRecorder struct {
	*worker
	sesame.NopObserver

	repo history.Repository
}

var _ sesame.Observer = (*HistoryRecorder)(nil)

// NewHistoryRecorder creates a recorder. Call Start before notifications
// flow.
func NewHistoryRecorder(repo history.Repository) *HistoryRecorder {
	return &HistoryRecorder{worker: newWorker("history", 0), repo: repo}
}

func (h *HistoryRecorder) TriggerEvent(_ sesame.TriggerSnapshot, e sesame.Event) {
	h.enqueue(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, storeTimeout)
		defer cancel()
		if _, err := h.repo.Record(ctx, e); err != nil {
			h.log().Warn("failed to record trigger event", "trigger", e.Trigger, "event", e.Kind, "error", err)
		}
	})
}

// Auditor writes pairing events from the engine to the audit trail.
type Auditor struct {
	*worker
	sesame.NopObserver

	rec *audit.Recorder

	// Touched only from the dispatch goroutine.
	seen       bool
	registered bool
}

var _ sesame.Observer = (*Auditor)(nil)

// NewAuditor creates an Auditor. Call Start before notifications flow.
func NewAuditor(rec *audit.Recorder) *Auditor {
	return &Auditor{worker: newWorker("audit", 0), rec: rec}
}

// Registration records a completed pairing. The first notification is the
// state at startup and is not audited; clearing the registration is audited
// by whoever requested the reset.
func (a *Auditor) Registration(registered bool) {
	was, seen := a.registered, a.seen
	a.seen, a.registered = true, registered
	if !seen || was || !registered {
		return
	}
	a.enqueue(func(ctx context.Context) {
		a.rec.Record(ctx, audit.ActionRegistration, audit.EntityServer, "", "", audit.SourceEngine, nil)
	})
}
