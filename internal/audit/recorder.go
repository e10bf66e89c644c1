package audit

import (
	"context"
	"time"
)

// Logger is the logging interface used by the Recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

// Recorder writes audit entries without failing the caller. Write errors
// are logged and dropped.
type Recorder struct {
	repo    Repository
	logger  Logger
	timeout time.Duration
}

// NewRecorder wraps repo. A nil repo yields a Recorder that records
// nothing.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger, timeout: 5 * time.Second}
}

// Record writes one entry.
func (r *Recorder) Record(ctx context.Context, action, entityType, entityID, userID, source string, details map[string]any) {
	if r == nil || r.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	err := r.repo.Create(ctx, &AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Source:     source,
		Details:    details,
	})
	if err != nil && r.logger != nil {
		r.logger.Warn("failed to write audit log", "action", action, "error", err)
	}
}
