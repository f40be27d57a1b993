// Package boundary locates the four sample quadrants of a form.
//
// A Detector returns a validated Set of quadrants. Two strategies exist: the
// geometric detector finds the printed cross with a Hough transform, and the
// oracle detector asks an external service and only validates its answer.
// Both degrade to DefaultSet, the fixed fractional layout, rather than fail a
// form.
package boundary

import (
	"fmt"
	"image"
	"math"

	"github.com/ironsheep/formscan/internal/config"
	"github.com/ironsheep/formscan/internal/errors"
	"github.com/ironsheep/formscan/internal/form"
)

// Source records which strategy produced a Set.
type Source string

const (
	SourceGeometric Source = "geometric"
	SourceOracle    Source = "oracle"
	SourceDefault   Source = "default"
)

// Quadrant is one sample's rectangle. End coordinates are exclusive.
type Quadrant struct {
	SampleID form.SampleID `json:"sample_id"`
	XStart   int           `json:"x_start"`
	XEnd     int           `json:"x_end"`
	YStart   int           `json:"y_start"`
	YEnd     int           `json:"y_end"`
}

// Rect returns the quadrant as an image.Rectangle.
func (q Quadrant) Rect() image.Rectangle {
	return image.Rect(q.XStart, q.YStart, q.XEnd, q.YEnd)
}

func (q Quadrant) Width() int  { return q.XEnd - q.XStart }
func (q Quadrant) Height() int { return q.YEnd - q.YStart }

// Set is the four quadrants of one form, in sample order.
type Set struct {
	Quadrants []Quadrant  `json:"quadrants"`
	Source    Source      `json:"source"`
	Center    image.Point `json:"center"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`

	// Fallback explains why a fallback layout was used. Empty otherwise.
	Fallback string `json:"fallback,omitempty"`

	VerticalCandidates   int `json:"vertical_candidates"`
	HorizontalCandidates int `json:"horizontal_candidates"`
}

// Quadrant returns the quadrant for id.
func (s *Set) Quadrant(id form.SampleID) (Quadrant, bool) {
	for _, q := range s.Quadrants {
		if q.SampleID == id {
			return q, true
		}
	}
	return Quadrant{}, false
}

// InvalidBoundaryError names the first quadrant that violates a constraint.
type InvalidBoundaryError struct {
	SampleID   form.SampleID
	Constraint string
}

func (e *InvalidBoundaryError) Error() string {
	return fmt.Sprintf("invalid boundary for sample %d: %s", e.SampleID, e.Constraint)
}

func (e *InvalidBoundaryError) ErrorCategory() errors.ErrorCategory { return errors.CategoryBoundary }

// Validate checks every quadrant of s against an image of width x height.
//
// Each quadrant must satisfy 0 <= start < end <= size on both axes and span
// at least minFraction of the corresponding image dimension. All four
// samples must be present exactly once and no two quadrants may overlap.
func Validate(s *Set, width, height int, minFraction float64) error {
	seen := make(map[form.SampleID]bool, form.SampleCount)
	for _, q := range s.Quadrants {
		if !q.SampleID.Valid() {
			return &InvalidBoundaryError{SampleID: q.SampleID, Constraint: "unknown sample id"}
		}
		if seen[q.SampleID] {
			return &InvalidBoundaryError{SampleID: q.SampleID, Constraint: "duplicate sample"}
		}
		seen[q.SampleID] = true

		switch {
		case q.XStart < 0:
			return &InvalidBoundaryError{SampleID: q.SampleID, Constraint: "x_start < 0"}
		case q.YStart < 0:
			return &InvalidBoundaryError{SampleID: q.SampleID, Constraint: "y_start < 0"}
		case q.XEnd > width:
			return &InvalidBoundaryError{SampleID: q.SampleID, Constraint: fmt.Sprintf("x_end > width (%d)", width)}
		case q.YEnd > height:
			return &InvalidBoundaryError{SampleID: q.SampleID, Constraint: fmt.Sprintf("y_end > height (%d)", height)}
		case q.XStart >= q.XEnd:
			return &InvalidBoundaryError{SampleID: q.SampleID, Constraint: "x_start >= x_end"}
		case q.YStart >= q.YEnd:
			return &InvalidBoundaryError{SampleID: q.SampleID, Constraint: "y_start >= y_end"}
		case float64(q.Width()) < minFraction*float64(width):
			return &InvalidBoundaryError{SampleID: q.SampleID, Constraint: fmt.Sprintf("width %d below %.0f%% of image", q.Width(), minFraction*100)}
		case float64(q.Height()) < minFraction*float64(height):
			return &InvalidBoundaryError{SampleID: q.SampleID, Constraint: fmt.Sprintf("height %d below %.0f%% of image", q.Height(), minFraction*100)}
		}
	}
	for _, id := range form.Samples() {
		if !seen[id] {
			return &InvalidBoundaryError{SampleID: id, Constraint: "missing"}
		}
	}
	for i, a := range s.Quadrants {
		for _, b := range s.Quadrants[i+1:] {
			if a.Rect().Overlaps(b.Rect()) {
				return &InvalidBoundaryError{SampleID: b.SampleID, Constraint: fmt.Sprintf("overlaps sample %d", a.SampleID)}
			}
		}
	}
	return nil
}

// Layout builds the four quadrants around the cross point (cx, cy).
//
// Margins are fractions of the image trimmed from each side; gap pixels are
// left on either side of the dividing lines.
func Layout(cx, cy, width, height int, p config.Pipeline) *Set {
	m := p.Margins
	gap := p.Detection.Gap

	left := round(float64(width) * m.Left)
	right := width - round(float64(width)*m.Right)
	top := round(float64(height) * m.Top)
	bottom := height - round(float64(height)*m.Bottom)

	return &Set{
		Quadrants: []Quadrant{
			{SampleID: 1, XStart: left, XEnd: cx - gap, YStart: top, YEnd: cy - gap},
			{SampleID: 2, XStart: cx + gap, XEnd: right, YStart: top, YEnd: cy - gap},
			{SampleID: 3, XStart: left, XEnd: cx - gap, YStart: cy + gap, YEnd: bottom},
			{SampleID: 4, XStart: cx + gap, XEnd: right, YStart: cy + gap, YEnd: bottom},
		},
		Center: image.Pt(cx, cy),
		Width:  width,
		Height: height,
	}
}

// DefaultCenter returns the fallback cross point for an image.
func DefaultCenter(width, height int, d config.DetectionConfig) (int, int) {
	return round(float64(width) * d.DefaultCenterX), round(float64(height) * d.DefaultCenterY)
}

// DefaultSet is the fixed fractional layout used when detection fails.
func DefaultSet(width, height int, p config.Pipeline) *Set {
	cx, cy := DefaultCenter(width, height, p.Detection)
	s := Layout(cx, cy, width, height, p)
	s.Source = SourceDefault
	return s
}

func round(v float64) int { return int(math.Round(v)) }
