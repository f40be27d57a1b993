package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// GormAdapter routes GORM's logging through a Logger. SQL statements are
// logged at debug level; slow statements and query errors at warn.
type GormAdapter struct {
	logger        Logger
	slowThreshold time.Duration
}

// NewGormAdapter wraps log. A zero slowThreshold disables slow-query warnings.
func NewGormAdapter(log Logger, slowThreshold time.Duration) *GormAdapter {
	if log == nil {
		log = NewDiscard()
	}
	return &GormAdapter{logger: log, slowThreshold: slowThreshold}
}

// LogMode is a no-op; levels come from the logger configuration.
func (a *GormAdapter) LogMode(_ gorm_logger.LogLevel) gorm_logger.Interface { return a }

func (a *GormAdapter) Info(_ context.Context, msg string, data ...any) {
	a.logger.Debug(fmt.Sprintf(msg, data...))
}

func (a *GormAdapter) Warn(_ context.Context, msg string, data ...any) {
	a.logger.Warn(fmt.Sprintf(msg, data...))
}

func (a *GormAdapter) Error(_ context.Context, msg string, data ...any) {
	a.logger.Error(fmt.Sprintf(msg, data...))
}

func (a *GormAdapter) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		a.logger.Warn("query error",
			String("sql", sql),
			Int64("rows_affected", rows),
			Int64("duration_ms", elapsed.Milliseconds()),
			Error(err))
	case a.slowThreshold > 0 && elapsed > a.slowThreshold:
		a.logger.Warn("slow query",
			String("sql", sql),
			Int64("rows_affected", rows),
			Duration("threshold", a.slowThreshold))
	default:
		a.logger.Debug("sql query",
			String("sql", sql),
			Int64("rows_affected", rows),
			Int64("duration_ms", elapsed.Milliseconds()))
	}
}
