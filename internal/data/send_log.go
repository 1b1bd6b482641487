package data

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// Send statuses recorded in the send log.
const (
	// SendStatusSuccess marks a send confirmed complete. Only these count
	// against the quota.
	SendStatusSuccess = "success"
	// SendStatusFailed marks an attempted send that did not complete.
	SendStatusFailed = "failed"
)

// SendRecord is the GORM model for the send_log table.
type SendRecord struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	Channel   string    `gorm:"column:channel;type:varchar(50);not null"`
	Recipient string    `gorm:"column:recipient;type:varchar(255)"`
	Status    string    `gorm:"column:status;type:varchar(20);not null;index:idx_status_sent_at"`
	SentAt    time.Time `gorm:"column:sent_at;not null;index:idx_status_sent_at"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM.
func (SendRecord) TableName() string {
	return "send_log"
}

// SendLogRepo implements biz.SendLogRepo over the persisted send log.
type SendLogRepo struct {
	db     *gorm.DB
	logger *log.Helper
}

// NewSendLogRepo creates a new send log repository.
func NewSendLogRepo(db *gorm.DB, logger log.Logger) *SendLogRepo {
	return &SendLogRepo{
		db:     db,
		logger: log.NewHelper(logger),
	}
}

// CountSuccessfulSince counts confirmed sends with sent_at >= since.
func (r *SendLogRepo) CountSuccessfulSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&SendRecord{}).
		Where("status = ? AND sent_at >= ?", SendStatusSuccess, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count send log records: %w", err)
	}

	return count, nil
}

// RecordSend appends a send outcome to the log. Callers must record success
// only after the send is confirmed complete, not merely attempted; the quota
// projection counts nothing else.
func (r *SendLogRepo) RecordSend(ctx context.Context, rec *SendRecord) error {
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now()
	}

	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to record send: %w", err)
	}

	r.logger.Debugw("send recorded",
		"channel", rec.Channel,
		"status", rec.Status,
		"sent_at", rec.SentAt)

	return nil
}
