// Package session runs a batch of forms through extraction, in training mode
// (human labels feed the example store) or inference mode (the classifier
// rates each region), and records one JSON log per run.
//
// Forms are processed concurrently by a bounded worker pool; each form is
// handled sequentially. A per-form failure is recorded and the batch
// continues. Cancelling the context stops dispatching new forms, lets
// in-flight forms finish the region they are on, and still writes the log.
package session

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/formscan/internal/augment"
	"github.com/ironsheep/formscan/internal/boundary"
	"github.com/ironsheep/formscan/internal/classifier"
	"github.com/ironsheep/formscan/internal/detection"
	"github.com/ironsheep/formscan/internal/errors"
	"github.com/ironsheep/formscan/internal/form"
	"github.com/ironsheep/formscan/internal/imaging"
	"github.com/ironsheep/formscan/internal/logger"
	"github.com/ironsheep/formscan/internal/metrics"
	"github.com/ironsheep/formscan/internal/ocr"
	"github.com/ironsheep/formscan/internal/partition"
	"github.com/ironsheep/formscan/internal/pipeline"
	"github.com/ironsheep/formscan/internal/store"
)

// Reasons recorded on flagged regions.
const (
	ReasonBlank    = "blank region"
	ReasonOperator = "quality issue"
)

// Options configures a session.
type Options struct {
	Mode      Mode
	Workers   int
	LogDir    string
	Recursive bool

	// SkipBlank flags regions with too little ink instead of labeling or
	// predicting them.
	SkipBlank      bool
	MinInkFraction float64
}

// Indexer records finished sessions, e.g. in the datastore.
type Indexer interface {
	RecordSession(ctx context.Context, l *Log) error
}

// Deps are the collaborators of a session. Extractor is always required.
// Training needs Labeler, Store and Augmenter; inference needs Classifier.
// OCR, Index and Metrics are optional.
type Deps struct {
	Extractor  *pipeline.Extractor
	Labeler    form.Labeler
	Store      *store.Store
	Augmenter  *augment.Engine
	Classifier classifier.Classifier
	OCR        ocr.Reader
	Index      Indexer
	Metrics    *metrics.Metrics
	Log        logger.Logger
	Clock      func() time.Time
}

// Session is a single run. It cannot be reused.
type Session struct {
	id   string
	opts Options
	deps Deps
	log  logger.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelCauseFunc

	// labelMu serializes prompts so the operator sees one region at a time.
	labelMu    sync.Mutex
	previewDir string
}

// New validates opts and deps and returns an idle session.
func New(opts Options, deps Deps) (*Session, error) {
	if !opts.Mode.Valid() {
		return nil, configError("unknown session mode %q", opts.Mode)
	}
	if deps.Extractor == nil {
		return nil, configError("session requires an extractor")
	}
	switch opts.Mode {
	case ModeTraining:
		if deps.Labeler == nil || deps.Store == nil || deps.Augmenter == nil {
			return nil, configError("training requires a labeler, a store and an augmenter")
		}
	case ModeInference:
		if deps.Classifier == nil {
			return nil, configError("inference requires a classifier")
		}
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if deps.Log == nil {
		deps.Log = logger.NewDiscard()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	id := uuid.New().String()
	return &Session{
		id:   id,
		opts: opts,
		deps: deps,
		log:  deps.Log.Module("session").With(logger.String("mode", string(opts.Mode))),
	}, nil
}

func configError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("session").
		Category(errors.CategoryConfiguration).
		Build()
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Stop cancels a running session. It is safe to call at any time.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel(context.Canceled)
	}
}

// Run processes inputs, which may be files or directories, and returns the
// session log. The returned error reports problems that prevented the batch
// from running or being recorded; per-form failures are in the log.
func (s *Session) Run(ctx context.Context, inputs ...string) (*Log, error) {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	s.mu.Lock()
	if s.state != StateIdle {
		st := s.state
		s.mu.Unlock()
		return nil, errors.Newf("session %s is %s, not idle", s.id, st).
			Component("session").
			Category(errors.CategoryValidation).
			Build()
	}
	s.state = StateScanning
	s.cancel = cancel
	s.mu.Unlock()
	defer s.setState(StateDone)

	defer s.deps.Metrics.SessionStarted()()

	runCtx = logger.WithSessionID(runCtx, s.id)
	log := s.log.WithContext(runCtx)
	p := s.deps.Extractor.Config()
	l := &Log{
		SessionID:       s.id,
		Mode:            s.opts.Mode,
		StartedAt:       s.deps.Clock(),
		PipelineVersion: p.Version,
		Fingerprint:     p.Fingerprint(),
		Inputs:          inputs,
	}

	forms, err := Scan(inputs, s.opts.Recursive)
	if err != nil {
		return nil, err
	}
	log.Info("session started",
		logger.Int("forms", len(forms)),
		logger.Int("workers", s.opts.Workers),
		logger.String("pipeline", p.ShortFingerprint()))

	if s.opts.Mode == ModeTraining {
		dir, err := os.MkdirTemp("", "formscan-preview-*")
		if err != nil {
			log.Warn("cannot create preview directory", logger.Error(err))
		} else {
			s.previewDir = dir
			defer os.RemoveAll(dir)
		}
	}

	s.setState(StateProcessing)
	l.Forms = s.process(runCtx, forms)
	l.Cancelled = runCtx.Err() != nil

	s.setState(StateFinalizing)
	return l, s.finalize(context.WithoutCancel(runCtx), l)
}

// process runs forms on the worker pool. Outcomes are indexed by input
// order; forms never dispatched are recorded as cancelled.
func (s *Session) process(ctx context.Context, forms []string) []FormOutcome {
	outcomes := make([]FormOutcome, len(forms))
	dispatched := make([]bool, len(forms))

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i, path := range forms {
		if ctx.Err() != nil {
			break
		}
		dispatched[i] = true
		g.Go(func() error {
			outcomes[i] = s.processForm(ctx, i, path)
			return nil
		})
	}
	_ = g.Wait()

	for i, path := range forms {
		if !dispatched[i] {
			outcomes[i] = FormOutcome{Index: i, Path: path, Status: StatusCancelled}
		}
	}
	return outcomes
}

func (s *Session) processForm(ctx context.Context, index int, path string) (out FormOutcome) {
	start := time.Now()
	out = FormOutcome{Index: index, Path: path}
	log := s.log.WithContext(ctx).With(logger.String("form", path))
	defer func() {
		d := time.Since(start)
		out.DurationMS = d.Milliseconds()
		s.deps.Metrics.RecordForm(string(s.opts.Mode), out.Status, d)
	}()

	if ctx.Err() != nil {
		out.Status = StatusCancelled
		return out
	}

	ex, err := s.deps.Extractor.ExtractFile(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			out.Status = StatusCancelled
			return out
		}
		out.Status = StatusFailed
		out.Error = err.Error()
		out.ErrorCategory = string(errors.CategoryOf(err))
		log.Warn("form failed", logger.Error(err), logger.String("category", out.ErrorCategory))
		return out
	}
	out.Boundaries = ex.Boundaries
	s.deps.Metrics.RecordBoundary(string(ex.Boundaries.Source))

	if s.deps.OCR != nil {
		h, err := s.deps.OCR.ReadHeader(ctx, ex.Raw.Image)
		if err != nil {
			log.Warn("header OCR failed", logger.Error(err))
		} else {
			out.Header = h.Text
			out.HeaderConfidence = h.Confidence
		}
	}

	for _, w := range ex.Warnings {
		out.Regions = append(out.Regions, RegionOutcome{
			Sample:         w.SampleID,
			Attribute:      w.Attribute.Name,
			AttributeIndex: w.Attribute.Index,
			Rect:           rectArray(w.Rect),
			Outcome:        OutcomeEmpty,
			Reason:         w.Error(),
		})
		s.deps.Metrics.RecordRegion(string(s.opts.Mode), OutcomeEmpty)
	}

	out.Status = StatusOK
	for _, r := range ex.Regions {
		if ctx.Err() != nil {
			out.Status = StatusCancelled
			break
		}
		ro, err := s.handleRegion(ctx, ex, r)
		if err != nil {
			out.Status = StatusCancelled
			break
		}
		out.Regions = append(out.Regions, ro)
		s.deps.Metrics.RecordRegion(string(s.opts.Mode), ro.Outcome)
	}

	slices.SortStableFunc(out.Regions, func(a, b RegionOutcome) int {
		if a.Sample != b.Sample {
			return int(a.Sample) - int(b.Sample)
		}
		return a.AttributeIndex - b.AttributeIndex
	})
	return out
}

// handleRegion resolves one region. A non-nil error means the session is
// stopping and the region was not resolved.
func (s *Session) handleRegion(ctx context.Context, ex *pipeline.Extraction, r partition.Region) (RegionOutcome, error) {
	ro := RegionOutcome{
		Sample:         r.SampleID,
		Attribute:      r.Attribute.Name,
		AttributeIndex: r.Attribute.Index,
		Rect:           rectArray(r.Rect),
	}
	if s.opts.SkipBlank {
		ink := detection.AnalyzeInk(r.Crop, s.opts.MinInkFraction)
		ro.Ink = &ink
		if ink.Blank {
			ro.Outcome = OutcomeFlagged
			ro.Reason = ReasonBlank
			return ro, nil
		}
	}
	if s.opts.Mode == ModeTraining {
		return s.label(ctx, ex, r, ro)
	}
	return s.predict(ctx, r, ro)
}

func (s *Session) label(ctx context.Context, ex *pipeline.Extraction, r partition.Region, ro RegionOutcome) (RegionOutcome, error) {
	ref := r.Ref(ex.Form)

	s.labelMu.Lock()
	res, err := s.deps.Labeler.RequestRating(ctx, ref, s.writePreview(r))
	s.labelMu.Unlock()

	if err != nil {
		if errors.Is(err, form.ErrLabelingStopped) {
			s.log.Info("labeling stopped by operator", logger.String("region", ref.String()))
			s.Stop()
			return ro, err
		}
		if ctx.Err() != nil {
			return ro, ctx.Err()
		}
		s.log.Warn("labeling failed", logger.String("region", ref.String()), logger.Error(err))
		ro.Outcome = OutcomeError
		ro.Reason = err.Error()
		return ro, nil
	}

	switch res.Kind {
	case form.Skipped:
		ro.Outcome = OutcomeSkipped
	case form.QualityIssue:
		ro.Outcome = OutcomeFlagged
		ro.Reason = ReasonOperator
	case form.Rated:
		ro.Rating = res.Rating
		n, err := s.storeRegion(ex, r, res.Rating)
		ro.Examples = n
		if err != nil {
			s.log.Error("storing examples failed", logger.String("region", ref.String()), logger.Error(err))
			ro.Outcome = OutcomeError
			ro.Reason = err.Error()
			return ro, nil
		}
		ro.Outcome = OutcomeLabeled
	}
	return ro, nil
}

// writePreview saves the region crop for the operator to look at. Callers
// hold labelMu. A failure only costs the preview.
func (s *Session) writePreview(r partition.Region) string {
	if s.previewDir == "" {
		return ""
	}
	data, err := imaging.PNGBytes(r.Crop)
	if err != nil {
		return ""
	}
	path := filepath.Join(s.previewDir, "region.png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.log.Debug("cannot write preview", logger.Error(err))
		return ""
	}
	return path
}

// storeRegion appends the region and its variants, returning how many
// examples were written.
func (s *Session) storeRegion(ex *pipeline.Extraction, r partition.Region, rating form.Rating) (int, error) {
	variants := s.deps.Augmenter.Augment(r.Image, RegionSeed(ex.Form, r.SampleID, r.Attribute))
	ts := s.deps.Clock()
	prov := store.Provenance{
		SourceImage:    ex.Form,
		BoundarySource: string(ex.Boundaries.Source),
		SessionID:      s.id,
	}
	n := 0
	for _, v := range variants {
		_, err := s.deps.Store.Append(store.Example{
			Image:      v.Image,
			Rating:     rating,
			Sample:     r.SampleID,
			Attribute:  r.Attribute,
			Tag:        v.Tag,
			Timestamp:  ts,
			Provenance: prov,
		})
		if err != nil {
			s.deps.Metrics.AddExamples(n)
			return n, err
		}
		n++
	}
	s.deps.Metrics.AddExamples(n)
	return n, nil
}

// RegionSeed derives the augmentation seed of a region from its identity,
// so relabeling a form reproduces the same noise.
func RegionSeed(formPath string, sample form.SampleID, attr form.Attribute) uint64 {
	h := xxhash.New()
	h.WriteString(filepath.Clean(formPath))
	h.Write([]byte{0, byte(sample), 0})
	h.WriteString(attr.Name)
	return h.Sum64()
}

func (s *Session) predict(ctx context.Context, r partition.Region, ro RegionOutcome) (RegionOutcome, error) {
	pred, err := s.deps.Classifier.Predict(ctx, r.Image)
	if err != nil {
		if ctx.Err() != nil {
			return ro, ctx.Err()
		}
		ro.Outcome = OutcomeError
		ro.Reason = err.Error()
		return ro, nil
	}
	ro.Rating = pred.Rating
	ro.Degraded = pred.Degraded
	ro.Reason = pred.Reason
	if pred.Degraded {
		ro.Outcome = OutcomeDegraded
	} else {
		ro.Outcome = OutcomePredicted
	}
	return ro, nil
}

func (s *Session) finalize(ctx context.Context, l *Log) error {
	log := s.log.WithContext(ctx)
	l.FinishedAt = s.deps.Clock()
	l.Tally()

	if s.opts.Mode == ModeTraining {
		var sets []*boundary.Set
		for i := range l.Forms {
			if b := l.Forms[i].Boundaries; b != nil {
				sets = append(sets, b)
			}
		}
		l.BoundaryStats = ComputeBoundaryStats(sets)
	}

	var err error
	if s.opts.LogDir != "" {
		if err = l.Write(s.opts.LogDir); err != nil {
			log.Error("cannot write session log", logger.Error(err))
		}
	}
	if s.deps.Index != nil {
		if ierr := s.deps.Index.RecordSession(ctx, l); ierr != nil {
			log.Warn("cannot index session", logger.Error(ierr))
		}
	}

	t := l.Totals
	log.Info("session finished",
		logger.Int("forms", t.Forms),
		logger.Int("processed", t.Processed),
		logger.Int("failed", t.Failed),
		logger.Int("skipped", t.Skipped),
		logger.Int("flagged", t.Flagged),
		logger.Int("degraded", t.Degraded),
		logger.Int("examples", t.Examples),
		logger.Bool("cancelled", l.Cancelled),
		logger.String("log", l.Path),
		logger.Duration("elapsed", l.FinishedAt.Sub(l.StartedAt)))
	return err
}
