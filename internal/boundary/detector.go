package boundary

import (
	"context"
	"image"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/formscan/internal/config"
	"github.com/ironsheep/formscan/internal/detection"
	"github.com/ironsheep/formscan/internal/errors"
	"github.com/ironsheep/formscan/internal/imaging"
	"github.com/ironsheep/formscan/internal/logger"
)

// Detector locates the quadrants of a preprocessed form. name identifies the
// form in logs.
//
// A returned Set is always valid. An error is returned only when not even
// the default layout fits the image.
type Detector interface {
	Detect(ctx context.Context, img *image.Gray, name string) (*Set, error)
}

// SourceDetector is a Detector that can also look at the unprocessed image.
// source must have the same dimensions as img; rectangles are reported in
// img's coordinates either way.
type SourceDetector interface {
	Detector
	DetectSource(ctx context.Context, img *image.Gray, source image.Image, name string) (*Set, error)
}

// New returns the detector selected by p.Detection.Strategy. The oracle
// strategy requires a non-nil oracle.
func New(p config.Pipeline, oracle Oracle, log logger.Logger) (Detector, error) {
	geo := NewGeometric(p, log)
	switch p.Detection.Strategy {
	case "", config.StrategyGeometric:
		return geo, nil
	case config.StrategyOracle:
		if oracle == nil {
			return nil, errors.Newf("detection strategy %q requires an oracle endpoint", p.Detection.Strategy).
				Component("boundary").
				Category(errors.CategoryConfiguration).
				Build()
		}
		return NewOracleDetector(p, oracle, geo, log), nil
	default:
		return nil, errors.Newf("unknown detection strategy %q", p.Detection.Strategy).
			Component("boundary").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// Geometric finds the printed cross dividing the samples.
type Geometric struct {
	pipeline config.Pipeline
	log      logger.Logger
}

// NewGeometric returns the Hough-based detector.
func NewGeometric(p config.Pipeline, log logger.Logger) *Geometric {
	return &Geometric{pipeline: p, log: log.Module("boundary")}
}

// Detect finds the dominant near-vertical line in the middle third of the
// width and the dominant near-horizontal line in the configured height band.
// The cross point is the median position of each orientation's candidates;
// an orientation without candidates uses its default fraction.
func (g *Geometric) Detect(ctx context.Context, img *image.Gray, name string) (*Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d := g.pipeline.Detection
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	edges := imaging.Canny(img, d.CannyLow, d.CannyHigh)
	lines := detection.DetectAxisLines(edges, detection.AxisOptions{
		AngleTolerance:  d.AngleTolerance,
		MinLineFraction: d.MinLineFraction,
	})
	vert := detection.MidlineBand(lines.Vertical, float64(w)/3, 2*float64(w)/3)
	horiz := detection.MidlineBand(lines.Horizontal, d.HorizontalBandMin*float64(h), d.HorizontalBandMax*float64(h))

	cx, cy := DefaultCenter(w, h, d)
	if len(vert) > 0 {
		cx = round(median(detection.Positions(vert)))
	}
	if len(horiz) > 0 {
		cy = round(median(detection.Positions(horiz)))
	}

	set := Layout(cx, cy, w, h, g.pipeline)
	set.Source = SourceGeometric
	set.VerticalCandidates = len(vert)
	set.HorizontalCandidates = len(horiz)
	if len(vert) == 0 && len(horiz) == 0 {
		set.Source = SourceDefault
		set.Fallback = "no dividing lines found"
	}

	g.log.Debug("cross point located",
		logger.String("form", name),
		logger.Int("center_x", cx),
		logger.Int("center_y", cy),
		logger.Int("vertical_candidates", len(vert)),
		logger.Int("horizontal_candidates", len(horiz)))

	return validateOrDefault(set, g.pipeline, g.log, name)
}

// validateOrDefault returns set when valid, else the default layout.
func validateOrDefault(set *Set, p config.Pipeline, log logger.Logger, name string) (*Set, error) {
	minFrac := p.Detection.MinBoundaryFraction
	err := Validate(set, set.Width, set.Height, minFrac)
	if err == nil {
		return set, nil
	}

	log.Warn("boundary validation failed, using default layout",
		logger.String("form", name),
		logger.String("source", string(set.Source)),
		logger.Error(err))

	def := DefaultSet(set.Width, set.Height, p)
	def.Fallback = err.Error()
	def.VerticalCandidates = set.VerticalCandidates
	def.HorizontalCandidates = set.HorizontalCandidates
	if derr := Validate(def, def.Width, def.Height, minFrac); derr != nil {
		return nil, derr
	}
	return def, nil
}

// median is the empirical 0.5 quantile, always one of the inputs.
func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
