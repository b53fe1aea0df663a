package shared

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ActivityEvent represents a record stored in activity_logs.
type ActivityEvent struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// ActivityRecorder appends events for the activity log. Recording is
// fire-and-forget: a failed append must never abort the triggering
// operation, so failures are logged and swallowed.
type ActivityRecorder interface {
	Record(ctx context.Context, event ActivityEvent)
}

// ActivityLogger writes records into activity_logs.
type ActivityLogger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewActivityLogger returns a new ActivityLogger.
func NewActivityLogger(pool *pgxpool.Pool, logger *slog.Logger) *ActivityLogger {
	return &ActivityLogger{pool: pool, logger: logger}
}

// Record persists the event. Errors are logged, never returned.
func (l *ActivityLogger) Record(ctx context.Context, event ActivityEvent) {
	if l == nil || l.pool == nil {
		return
	}
	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	metaJSON, err := json.Marshal(event.Meta)
	if err != nil {
		metaJSON = []byte("{}")
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO activity_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ActorID, event.Action, event.Entity, event.EntityID, metaJSON, at)
	if err != nil && l.logger != nil {
		l.logger.Warn("record activity", slog.String("action", event.Action), slog.Any("error", err))
	}
}

// NopActivityRecorder discards events. Useful in tests.
type NopActivityRecorder struct{}

func (NopActivityRecorder) Record(ctx context.Context, event ActivityEvent) {}
