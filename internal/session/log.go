package session

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/ironsheep/formscan/internal/boundary"
	"github.com/ironsheep/formscan/internal/detection"
	"github.com/ironsheep/formscan/internal/errors"
	"github.com/ironsheep/formscan/internal/form"
)

// Log is the record of one session, written once when it finishes.
type Log struct {
	SessionID       string         `json:"session_id"`
	Mode            Mode           `json:"mode"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	PipelineVersion string         `json:"pipeline_version"`
	Fingerprint     string         `json:"pipeline_fingerprint"`
	Inputs          []string       `json:"inputs"`
	Cancelled       bool           `json:"cancelled"`
	Forms           []FormOutcome  `json:"forms"`
	Totals          Totals         `json:"totals"`
	BoundaryStats   *BoundaryStats `json:"boundary_stats,omitempty"`

	// Path is where the log was written. Empty when no log directory is set.
	Path string `json:"-"`
}

// FormOutcome is the result for one input file.
type FormOutcome struct {
	Index            int             `json:"index"`
	Path             string          `json:"path"`
	Status           string          `json:"status"`
	Error            string          `json:"error,omitempty"`
	ErrorCategory    string          `json:"error_category,omitempty"`
	Boundaries       *boundary.Set   `json:"boundaries,omitempty"`
	Header           string          `json:"header,omitempty"`
	HeaderConfidence float64         `json:"header_confidence,omitempty"`
	Regions          []RegionOutcome `json:"regions,omitempty"`
	DurationMS       int64           `json:"duration_ms"`
}

// RegionOutcome is the result for one attribute region.
type RegionOutcome struct {
	Sample         form.SampleID        `json:"sample"`
	Attribute      string               `json:"attribute"`
	AttributeIndex int                  `json:"attribute_index"`
	Rect           [4]int               `json:"rect"`
	Outcome        string               `json:"outcome"`
	Rating         form.Rating          `json:"rating,omitempty"`
	Degraded       bool                 `json:"degraded,omitempty"`
	Reason         string               `json:"reason,omitempty"`
	Examples       int                  `json:"examples,omitempty"`
	Ink            *detection.InkReport `json:"ink,omitempty"`
}

// Totals aggregates the outcomes of a session.
type Totals struct {
	Forms     int `json:"forms"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Regions   int `json:"regions"`
	Labeled   int `json:"labeled"`
	Skipped   int `json:"skipped"`
	Flagged   int `json:"flagged"`
	Empty     int `json:"empty"`
	Predicted int `json:"predicted"`
	Degraded  int `json:"degraded"`
	Errors    int `json:"errors"`
	Examples  int `json:"examples"`
}

// Tally recomputes Totals from Forms. Empty regions count as skipped too.
func (l *Log) Tally() {
	t := Totals{Forms: len(l.Forms)}
	for _, f := range l.Forms {
		switch f.Status {
		case StatusOK:
			t.Processed++
		case StatusFailed:
			t.Failed++
		case StatusCancelled:
			t.Cancelled++
		}
		for _, r := range f.Regions {
			t.Regions++
			t.Examples += r.Examples
			switch r.Outcome {
			case OutcomeLabeled:
				t.Labeled++
			case OutcomeSkipped:
				t.Skipped++
			case OutcomeEmpty:
				t.Empty++
				t.Skipped++
			case OutcomeFlagged:
				t.Flagged++
			case OutcomePredicted:
				t.Predicted++
			case OutcomeDegraded:
				t.Predicted++
				t.Degraded++
			case OutcomeError:
				t.Errors++
			}
		}
	}
	l.Totals = t
}

// FailedForms returns the paths of forms that did not load or extract.
func (l *Log) FailedForms() []string {
	var out []string
	for _, f := range l.Forms {
		if f.Status == StatusFailed {
			out = append(out, f.Path)
		}
	}
	return out
}

// Summary is a one-line description of the totals.
func (l *Log) Summary() string {
	t := l.Totals
	s := fmt.Sprintf("processed %d/%d, failed %d, skipped %d, flagged %d, degraded %d",
		t.Processed, t.Forms, t.Failed, t.Skipped, t.Flagged, t.Degraded)
	if l.Cancelled {
		s += " (cancelled)"
	}
	return s
}

// FileName is session-<start>-<id>.json.
func (l *Log) FileName() string {
	return fmt.Sprintf("session-%s-%s.json", l.StartedAt.UTC().Format("20060102-150405"), l.SessionID)
}

// Write stores the log as indented JSON under dir and sets l.Path.
func (l *Log) Write(dir string) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return logError(err, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return logError(err, dir)
	}
	path := filepath.Join(dir, l.FileName())
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return logError(err, dir)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return logError(err, dir)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return logError(err, dir)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return logError(err, dir)
	}
	l.Path = path
	return nil
}

// ReadLog loads a session log written by Write.
func ReadLog(path string) (*Log, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, logError(err, path)
	}
	l := &Log{}
	if err := json.Unmarshal(data, l); err != nil {
		return nil, logError(fmt.Errorf("parse session log: %w", err), path)
	}
	l.Path = path
	return l, nil
}

func logError(err error, path string) error {
	return errors.New(err).
		Component("session").
		Category(errors.CategoryFileIO).
		FileContext(path).
		Build()
}

func rectArray(r image.Rectangle) [4]int {
	return [4]int{r.Min.X, r.Min.Y, r.Max.X, r.Max.Y}
}
