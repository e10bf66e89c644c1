// Package history stores the events forwarded from configured peers so
// they can be listed after the fact.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-sesame/internal/sesame"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Entry is one stored trigger event.
type Entry struct {
	ID         string    `json:"id"`
	Trigger    string    `json:"trigger"`
	Address    string    `json:"address"`
	Event      string    `json:"event"`
	Tag        string    `json:"tag"`
	TagType    *float64  `json:"tag_type"`
	ReceivedAt time.Time `json:"received_at"`
}

// Filter selects entries. Zero values match everything.
type Filter struct {
	Trigger string
	Event   string
	Since   time.Time
	Limit   int // default 50, max 500
}

// Repository stores and lists trigger events.
type Repository interface {
	Record(ctx context.Context, e sesame.Event) (*Entry, error)
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// SQLiteRepository stores events in the trigger_events table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record stores one event.
func (r *SQLiteRepository) Record(ctx context.Context, e sesame.Event) (*Entry, error) {
	entry := &Entry{
		ID:         "evt-" + uuid.NewString(),
		Trigger:    e.Trigger,
		Address:    e.Address.String(),
		Event:      string(e.Kind),
		Tag:        e.Tag,
		ReceivedAt: e.Received.UTC(),
	}
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now().UTC()
	}
	var tagType any
	if !math.IsNaN(e.TagType) {
		v := e.TagType
		entry.TagType = &v
		tagType = v
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO trigger_events (id, trigger_name, address, event, tag, tag_type, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Trigger, entry.Address, entry.Event, entry.Tag, tagType,
		entry.ReceivedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting trigger event: %w", err)
	}
	return entry, nil
}

// List returns matching entries, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}

	var (
		conditions []string
		args       []any
	)
	if filter.Trigger != "" {
		conditions = append(conditions, "trigger_name = ?")
		args = append(args, filter.Trigger)
	}
	if filter.Event != "" {
		conditions = append(conditions, "event = ?")
		args = append(args, filter.Event)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "received_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions
		"SELECT id, trigger_name, address, event, tag, tag_type, received_at FROM trigger_events %s ORDER BY received_at DESC, rowid DESC LIMIT ?",
		where,
	)
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying trigger events: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e          Entry
			tagType    sql.NullFloat64
			receivedAt string
		)
		if err := rows.Scan(&e.ID, &e.Trigger, &e.Address, &e.Event, &e.Tag, &tagType, &receivedAt); err != nil {
			return nil, fmt.Errorf("scanning trigger event: %w", err)
		}
		if tagType.Valid {
			v := tagType.Float64
			e.TagType = &v
		}
		e.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing trigger event timestamp %q: %w", receivedAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trigger events: %w", err)
	}
	return entries, nil
}
