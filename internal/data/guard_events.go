package data

import (
	"context"
	"encoding/json"
	"time"

	"JobGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// Guard event types persisted for operational visibility.
const (
	EventBreakerStateChanged = "breaker_state_changed"
	EventPoolAcquireTimeout  = "pool_acquire_timeout"
	EventLockContended       = "lock_contended"
	EventQuotaExhausted      = "quota_exhausted"
	EventStuckOpsReleased    = "stuck_operations_released"
)

// GuardEvent is the GORM model for the guard_events table.
type GuardEvent struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	EventType string    `gorm:"column:event_type;type:varchar(50);not null;index"`
	Details   string    `gorm:"column:details;type:json"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (GuardEvent) TableName() string {
	return "guard_events"
}

// GuardEventWriter implements biz.GuardEventLogger with an async buffered
// channel so event persistence never blocks or fails the guarded call path.
// Events are dropped, with a warning, when the buffer is full.
type GuardEventWriter struct {
	db      *gorm.DB
	eventCh chan *GuardEvent
	logger  *log.Helper
}

// NewGuardEventWriter creates the event writer and starts its background
// persistence goroutine.
func NewGuardEventWriter(db *gorm.DB, logger log.Logger) *GuardEventWriter {
	w := &GuardEventWriter{
		db:      db,
		eventCh: make(chan *GuardEvent, 1000),
		logger:  log.NewHelper(logger),
	}

	go w.run()

	return w
}

// run persists queued events until the channel closes.
func (w *GuardEventWriter) run() {
	for event := range w.eventCh {
		ctx := context.Background()
		if err := w.db.WithContext(ctx).Create(event).Error; err != nil {
			w.logger.Errorw("failed to write guard event",
				"event_type", event.EventType,
				"error", err)
		}
	}
}

// LogBreakerStateChange records a circuit breaker transition.
func (w *GuardEventWriter) LogBreakerStateChange(_ context.Context, name string, from, to model.BreakerState) {
	w.enqueue(EventBreakerStateChanged, map[string]interface{}{
		"breaker": name,
		"from":    from.String(),
		"to":      to.String(),
	})
}

// LogPoolAcquireTimeout records a waiter that gave up before a slot freed.
func (w *GuardEventWriter) LogPoolAcquireTimeout(_ context.Context, waited time.Duration, waiting int) {
	w.enqueue(EventPoolAcquireTimeout, map[string]interface{}{
		"waited_seconds": waited.Seconds(),
		"waiting":        waiting,
	})
}

// LogLockContended records a skipped job run.
func (w *GuardEventWriter) LogLockContended(_ context.Context, name string, backing string) {
	w.enqueue(EventLockContended, map[string]interface{}{
		"job":     name,
		"backing": backing,
	})
}

// LogQuotaExhausted records a send blocked by an empty allowance.
func (w *GuardEventWriter) LogQuotaExhausted(_ context.Context, usage model.QuotaUsage) {
	w.enqueue(EventQuotaExhausted, map[string]interface{}{
		"limit":          usage.Limit,
		"sent_in_window": usage.SentInWindow,
		"window_seconds": usage.Window.Seconds(),
	})
}

// LogStuckOperationsReleased records a pool recovery sweep.
func (w *GuardEventWriter) LogStuckOperationsReleased(_ context.Context, count int, maxAge time.Duration) {
	w.enqueue(EventStuckOpsReleased, map[string]interface{}{
		"count":           count,
		"max_age_seconds": maxAge.Seconds(),
	})
}

// enqueue serializes the event and queues it without blocking.
func (w *GuardEventWriter) enqueue(eventType string, details map[string]interface{}) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		w.logger.Errorw("failed to marshal guard event details", "event_type", eventType, "error", err)
		return
	}

	event := &GuardEvent{
		EventType: eventType,
		Details:   string(detailsJSON),
	}

	select {
	case w.eventCh <- event:
	default:
		w.logger.Warnw("guard event channel full, dropping event", "event_type", eventType)
	}
}
