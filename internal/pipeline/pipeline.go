// Package pipeline runs the region-extraction stages shared by training and
// inference: load, preprocess, detect boundaries, partition.
//
// Every caller (batch sessions, the HTTP service, the MCP tools) goes
// through Extractor, so a form yields the same region pixels whichever mode
// asks for them.
package pipeline

import (
	"context"
	"image"
	"time"

	"github.com/ironsheep/formscan/internal/boundary"
	"github.com/ironsheep/formscan/internal/config"
	"github.com/ironsheep/formscan/internal/imaging"
	"github.com/ironsheep/formscan/internal/logger"
	"github.com/ironsheep/formscan/internal/metrics"
	"github.com/ironsheep/formscan/internal/partition"
	"github.com/ironsheep/formscan/internal/preprocess"
)

// Stage names used for timings.
const (
	StageLoad       = "load"
	StagePreprocess = "preprocess"
	StageDetect     = "detect"
	StagePartition  = "partition"
)

// Extraction is everything derived from one form.
type Extraction struct {
	Form       string
	Raw        *imaging.RawImage
	Processed  *image.Gray
	Boundaries *boundary.Set
	Regions    []partition.Region
	Warnings   []*partition.EmptyRegionWarning
	Timings    map[string]time.Duration
}

// Extractor holds the configured stages. It is safe for concurrent use.
type Extractor struct {
	cfg         config.Pipeline
	pre         *preprocess.Preprocessor
	detector    boundary.Detector
	partitioner *partition.Partitioner
	metrics     *metrics.Metrics
	log         logger.Logger
}

// New builds an Extractor for cfg. oracle may be nil unless the detection
// strategy is oracle. m may be nil.
func New(cfg config.Pipeline, oracle boundary.Oracle, m *metrics.Metrics, log logger.Logger) (*Extractor, error) {
	pre, err := preprocess.New(cfg.Preprocess)
	if err != nil {
		return nil, err
	}
	det, err := boundary.New(cfg, oracle, log)
	if err != nil {
		return nil, err
	}
	return &Extractor{
		cfg:         cfg,
		pre:         pre,
		detector:    det,
		partitioner: partition.New(cfg.Regions),
		metrics:     m,
		log:         log.Module("pipeline"),
	}, nil
}

// Config returns the pipeline configuration.
func (e *Extractor) Config() config.Pipeline { return e.cfg }

// Partitioner returns the region partitioner.
func (e *Extractor) Partitioner() *partition.Partitioner { return e.partitioner }

// ExtractFile loads path and extracts it. Load failures are
// *imaging.LoadError.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (*Extraction, error) {
	start := time.Now()
	raw, err := imaging.Load(path)
	loaded := time.Since(start)
	e.metrics.RecordStage(StageLoad, loaded)
	if err != nil {
		return nil, err
	}
	ex, err := e.Extract(ctx, raw)
	if err != nil {
		return nil, err
	}
	ex.Timings[StageLoad] = loaded
	return ex, nil
}

// Extract runs preprocessing, detection and partitioning on raw.
func (e *Extractor) Extract(ctx context.Context, raw *imaging.RawImage) (*Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ex := &Extraction{Form: raw.Path, Raw: raw, Timings: make(map[string]time.Duration, 4)}

	start := time.Now()
	processed, err := e.pre.Process(raw)
	e.record(ex, StagePreprocess, time.Since(start))
	if err != nil {
		return nil, err
	}
	ex.Processed = processed

	start = time.Now()
	var set *boundary.Set
	if sd, ok := e.detector.(boundary.SourceDetector); ok {
		set, err = sd.DetectSource(ctx, processed, raw.Image, raw.Path)
	} else {
		set, err = e.detector.Detect(ctx, processed, raw.Path)
	}
	e.record(ex, StageDetect, time.Since(start))
	if err != nil {
		return nil, err
	}
	ex.Boundaries = set

	start = time.Now()
	ex.Regions, ex.Warnings = e.partitioner.PartitionSet(set, processed)
	e.record(ex, StagePartition, time.Since(start))

	for _, w := range ex.Warnings {
		e.log.Warn("empty attribute region skipped",
			logger.String("form", raw.Path),
			logger.Int("sample", int(w.SampleID)),
			logger.String("attribute", w.Attribute.Name))
	}
	e.log.Debug("form extracted",
		logger.String("form", raw.Path),
		logger.String("boundary_source", string(set.Source)),
		logger.Int("regions", len(ex.Regions)),
		logger.Int("empty", len(ex.Warnings)))
	return ex, nil
}

func (e *Extractor) record(ex *Extraction, stage string, d time.Duration) {
	ex.Timings[stage] = d
	e.metrics.RecordStage(stage, d)
}

// Overlay draws the boundaries and attribute bands of ex onto its source
// image.
func (e *Extractor) Overlay(ex *Extraction) *image.RGBA {
	return imaging.Overlay(ex.Raw.Image, e.partitioner.Overlay(ex.Boundaries))
}
