package session

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/formscan/internal/boundary"
	"github.com/ironsheep/formscan/internal/form"
)

// EdgeStats is the mean and sample standard deviation of one boundary
// coordinate, as a fraction of the image dimension.
type EdgeStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
}

// QuadrantStats summarizes one sample's quadrant across a session.
type QuadrantStats struct {
	Sample form.SampleID `json:"sample"`
	XStart EdgeStats     `json:"x_start"`
	XEnd   EdgeStats     `json:"x_end"`
	YStart EdgeStats     `json:"y_start"`
	YEnd   EdgeStats     `json:"y_end"`
}

// BoundaryStats summarizes the boundary sets of a training session, for
// tuning the default layout.
type BoundaryStats struct {
	Forms     int             `json:"forms"`
	Quadrants []QuadrantStats `json:"quadrants"`
	CenterX   EdgeStats       `json:"center_x"`
	CenterY   EdgeStats       `json:"center_y"`
	Sources   map[string]int  `json:"sources"`
}

// ComputeBoundaryStats aggregates sets. It returns nil for no sets.
func ComputeBoundaryStats(sets []*boundary.Set) *BoundaryStats {
	if len(sets) == 0 {
		return nil
	}
	bs := &BoundaryStats{Forms: len(sets), Sources: make(map[string]int)}

	var cx, cy []float64
	for _, s := range sets {
		bs.Sources[string(s.Source)]++
		cx = append(cx, frac(s.Center.X, s.Width))
		cy = append(cy, frac(s.Center.Y, s.Height))
	}
	bs.CenterX = edgeStats(cx)
	bs.CenterY = edgeStats(cy)

	for _, id := range form.Samples() {
		var xs, xe, ys, ye []float64
		for _, s := range sets {
			q, ok := s.Quadrant(id)
			if !ok {
				continue
			}
			xs = append(xs, frac(q.XStart, s.Width))
			xe = append(xe, frac(q.XEnd, s.Width))
			ys = append(ys, frac(q.YStart, s.Height))
			ye = append(ye, frac(q.YEnd, s.Height))
		}
		if len(xs) == 0 {
			continue
		}
		bs.Quadrants = append(bs.Quadrants, QuadrantStats{
			Sample: id,
			XStart: edgeStats(xs),
			XEnd:   edgeStats(xe),
			YStart: edgeStats(ys),
			YEnd:   edgeStats(ye),
		})
	}
	return bs
}

// edgeStats reports a zero deviation for fewer than two values, where the
// sample deviation is undefined.
func edgeStats(xs []float64) EdgeStats {
	if len(xs) < 2 {
		var m float64
		if len(xs) == 1 {
			m = xs[0]
		}
		return EdgeStats{Mean: round4(m)}
	}
	mean, std := stat.MeanStdDev(xs, nil)
	return EdgeStats{Mean: round4(mean), StdDev: round4(std)}
}

func frac(v, n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(v) / float64(n)
}

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
