package boundary

import (
	"context"
	"image"

	"github.com/ironsheep/formscan/internal/config"
	"github.com/ironsheep/formscan/internal/form"
	"github.com/ironsheep/formscan/internal/logger"
)

// Oracle proposes quadrant rectangles for an image, in the image's own
// pixel coordinates.
type Oracle interface {
	Boundaries(ctx context.Context, img image.Image) (map[form.SampleID]image.Rectangle, error)
}

// OracleDetector validates rectangles supplied by an Oracle.
//
// Oracle failures fall back to the geometric detector. Rectangles that fail
// validation fall back to the default layout.
type OracleDetector struct {
	pipeline config.Pipeline
	oracle   Oracle
	fallback Detector
	log      logger.Logger
}

// NewOracleDetector wraps oracle with the given fallback detector.
func NewOracleDetector(p config.Pipeline, oracle Oracle, fallback Detector, log logger.Logger) *OracleDetector {
	return &OracleDetector{pipeline: p, oracle: oracle, fallback: fallback, log: log.Module("boundary.oracle")}
}

func (o *OracleDetector) Detect(ctx context.Context, img *image.Gray, name string) (*Set, error) {
	return o.DetectSource(ctx, img, img, name)
}

// DetectSource asks the oracle about source, the unprocessed photograph. img
// is sent instead when source is nil or differs in size, and is always what
// the geometric fallback sees.
func (o *OracleDetector) DetectSource(ctx context.Context, img *image.Gray, source image.Image, name string) (*Set, error) {
	query := image.Image(img)
	if source != nil && sameSize(source.Bounds(), img.Bounds()) {
		query = source
	}
	rects, err := o.oracle.Boundaries(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		o.log.Warn("oracle failed, using geometric detection",
			logger.String("form", name),
			logger.Error(err))
		set, gerr := o.fallback.Detect(ctx, img, name)
		if gerr != nil {
			return nil, gerr
		}
		if set.Fallback == "" {
			set.Fallback = "oracle: " + err.Error()
		}
		return set, nil
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	set := &Set{Source: SourceOracle, Width: w, Height: h}
	for _, id := range form.Samples() {
		r, ok := rects[id]
		if !ok {
			continue
		}
		set.Quadrants = append(set.Quadrants, Quadrant{
			SampleID: id,
			XStart:   r.Min.X,
			XEnd:     r.Max.X,
			YStart:   r.Min.Y,
			YEnd:     r.Max.Y,
		})
	}
	set.Center = crossOf(rects)
	return validateOrDefault(set, o.pipeline, o.log, name)
}

// crossOf estimates the cross point as the midpoint of the gaps between the
// top-left quadrant and its neighbours.
func crossOf(rects map[form.SampleID]image.Rectangle) image.Point {
	tl, ok1 := rects[1]
	tr, ok2 := rects[2]
	bl, ok3 := rects[3]
	if !ok1 || !ok2 || !ok3 {
		return image.Point{}
	}
	return image.Pt((tl.Max.X+tr.Min.X)/2, (tl.Max.Y+bl.Min.Y)/2)
}

func sameSize(a, b image.Rectangle) bool {
	return a.Dx() == b.Dx() && a.Dy() == b.Dy()
}
