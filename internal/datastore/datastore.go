// Package datastore indexes finished sessions in SQLite so failed forms can
// be found and re-run without reading every session log.
package datastore

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ironsheep/formscan/internal/errors"
	"github.com/ironsheep/formscan/internal/logger"
	"github.com/ironsheep/formscan/internal/session"
)

// slowQuery is the threshold above which queries are logged as slow.
const slowQuery = 200 * time.Millisecond

// Store is the session index.
type Store struct {
	db  *gorm.DB
	log logger.Logger
}

// Open opens or creates the database at path and migrates its schema.
// ":memory:" opens a private in-memory database.
func Open(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewDiscard()
	}
	log = log.Module("datastore")
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, dbError(err, "open").Context("path", path).Build()
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.NewGormAdapter(log, slowQuery)})
	if err != nil {
		return nil, dbError(err, "open").Context("path", path).Build()
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, dbError(err, "open").Context("path", path).Build()
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&SessionRecord{}, &FormRecord{}, &ExampleRecord{}); err != nil {
		return nil, dbError(err, "migrate").Context("path", path).Build()
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return dbError(err, "close").Build()
	}
	return sqlDB.Close()
}

// RecordSession stores l, its form outcomes and its example counts in one
// transaction. It implements session.Indexer.
func (s *Store) RecordSession(ctx context.Context, l *session.Log) error {
	rec := fromLog(l)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rec).Error
	})
	if err != nil {
		return dbError(err, "record_session").Context("session_id", l.SessionID).Build()
	}
	s.log.Debug("session indexed",
		logger.String("session_id", l.SessionID),
		logger.Int("forms", len(rec.Outcomes)))
	return nil
}

func fromLog(l *session.Log) SessionRecord {
	t := l.Totals
	rec := SessionRecord{
		SessionID:       l.SessionID,
		Mode:            string(l.Mode),
		StartedAt:       l.StartedAt,
		FinishedAt:      l.FinishedAt,
		PipelineVersion: l.PipelineVersion,
		Fingerprint:     l.Fingerprint,
		Cancelled:       l.Cancelled,
		LogPath:         l.Path,
		Forms:           t.Forms,
		Processed:       t.Processed,
		Failed:          t.Failed,
		Skipped:         t.Skipped,
		Flagged:         t.Flagged,
		Degraded:        t.Degraded,
		Examples:        t.Examples,
	}
	for _, f := range l.Forms {
		fr := FormRecord{
			Position:      f.Index,
			Path:          f.Path,
			Status:        f.Status,
			Error:         f.Error,
			ErrorCategory: f.ErrorCategory,
			Header:        f.Header,
			Regions:       len(f.Regions),
			DurationMS:    f.DurationMS,
		}
		if f.Boundaries != nil {
			fr.BoundarySource = string(f.Boundaries.Source)
		}
		rec.Outcomes = append(rec.Outcomes, fr)

		for _, r := range f.Regions {
			if r.Examples == 0 {
				continue
			}
			rec.ExampleSets = append(rec.ExampleSets, ExampleRecord{
				FormPath:  f.Path,
				Sample:    int(r.Sample),
				Attribute: r.Attribute,
				Rating:    int(r.Rating),
				Count:     r.Examples,
			})
		}
	}
	return rec
}

// ListSessions returns the most recent sessions first. limit <= 0 returns
// all of them.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	var out []SessionRecord
	q := s.db.WithContext(ctx).Order("started_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, dbError(err, "list_sessions").Build()
	}
	return out, nil
}

// FailedForms returns the forms that failed in the session, in input order.
// sessionID may be a unique prefix.
func (s *Store) FailedForms(ctx context.Context, sessionID string) ([]FormRecord, error) {
	rec, err := s.findSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var out []FormRecord
	err = s.db.WithContext(ctx).
		Where("session_record_id = ? AND status = ?", rec.ID, session.StatusFailed).
		Order("position ASC").
		Find(&out).Error
	if err != nil {
		return nil, dbError(err, "failed_forms").Context("session_id", sessionID).Build()
	}
	return out, nil
}

// RatingCounts sums stored examples per rating across all sessions.
func (s *Store) RatingCounts(ctx context.Context) (map[int]int, error) {
	var rows []struct {
		Rating int
		Total  int
	}
	err := s.db.WithContext(ctx).
		Model(&ExampleRecord{}).
		Select("rating, SUM(count) AS total").
		Group("rating").
		Scan(&rows).Error
	if err != nil {
		return nil, dbError(err, "rating_counts").Build()
	}
	out := make(map[int]int, len(rows))
	for _, r := range rows {
		out[r.Rating] = r.Total
	}
	return out, nil
}

func (s *Store) findSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	var recs []SessionRecord
	err := s.db.WithContext(ctx).
		Where("session_id LIKE ?", sessionID+"%").
		Limit(2).
		Find(&recs).Error
	if err != nil {
		return nil, dbError(err, "find_session").Context("session_id", sessionID).Build()
	}
	switch len(recs) {
	case 0:
		return nil, errors.Newf("no session matches %q", sessionID).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	case 1:
		return &recs[0], nil
	default:
		return nil, errors.Newf("session prefix %q is ambiguous", sessionID).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}
}

func dbError(err error, op string) *errors.ErrorBuilder {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", op)
}
