package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/photo-capture/internal/logging"
)

// CaptureLog records one processed capture. Only metadata is persisted; the
// image bytes themselves stay ephemeral.
type CaptureLog struct {
	ID             uint      `gorm:"primaryKey"`
	RequestID      string    `gorm:"column:request_id;uniqueIndex;size:64"`
	Filename       string    `gorm:"column:filename;size:255"`
	Width          int       `gorm:"column:width"`
	Height         int       `gorm:"column:height"`
	OriginalWidth  int       `gorm:"column:original_width"`
	OriginalHeight int       `gorm:"column:original_height"`
	ValueMin       float64   `gorm:"column:value_min"`
	ValueMax       float64   `gorm:"column:value_max"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (CaptureLog) TableName() string {
	return "capture_logs"
}

// MetricsAggregation holds raw aggregates computed by the database.
type MetricsAggregation struct {
	TotalCount      int64   `gorm:"column:total_count"`
	AverageWidth    float64 `gorm:"column:average_width"`
	AverageHeight   float64 `gorm:"column:average_height"`
	AverageValueMax float64 `gorm:"column:average_value_max"`
}

// CaptureLogRepository provides persistence APIs for capture logs.
type CaptureLogRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewCaptureLogRepository creates a new repository instance.
func NewCaptureLogRepository(db *gorm.DB, logger *zap.Logger) *CaptureLogRepository {
	return &CaptureLogRepository{
		db:             db,
		logger:         logger.Named("capture_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *CaptureLogRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&CaptureLog{})
}

// SaveLog persists a capture log entry.
func (r *CaptureLogRepository) SaveLog(ctx context.Context, log *CaptureLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// ListRecent returns the most recent capture logs, newest first.
func (r *CaptureLogRepository) ListRecent(ctx context.Context, limit int) ([]*CaptureLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []*CaptureLog
	err := r.executeWithRetry(ctx, "repository.list_recent", "", func() error {
		return r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&logs).Error
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// AggregateMetrics computes summary statistics over all capture logs.
func (r *CaptureLogRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&CaptureLog{}).
			Select("COUNT(*) AS total_count, COALESCE(AVG(width), 0) AS average_width, COALESCE(AVG(height), 0) AS average_height, COALESCE(AVG(value_max), 0) AS average_value_max").
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *CaptureLogRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)

	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
