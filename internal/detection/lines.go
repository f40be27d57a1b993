package detection

import (
	"image"
	"math"
	"sort"

	"github.com/ironsheep/formscan/internal/imaging"
)

// Orientation distinguishes near-vertical from near-horizontal lines.
type Orientation string

const (
	Vertical   Orientation = "vertical"
	Horizontal Orientation = "horizontal"
)

// Point represents a 2D coordinate in pixel space.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// AxisLine is a detected line close to one of the image axes.
type AxisLine struct {
	Orientation Orientation `json:"orientation"`

	// Position is where the line crosses the image midline: the x coordinate
	// at half height for vertical lines, the y coordinate at half width for
	// horizontal lines.
	Position float64 `json:"position"`

	// Skew is the deviation from the axis in degrees.
	Skew float64 `json:"skew_degrees"`

	// Votes is the number of edge pixels supporting the line.
	Votes int `json:"votes"`

	Start  Point   `json:"start"`
	End    Point   `json:"end"`
	Length float64 `json:"length"`
}

// LinesResult contains detected lines of both orientations, strongest first.
type LinesResult struct {
	Vertical   []AxisLine `json:"vertical"`
	Horizontal []AxisLine `json:"horizontal"`
}

// Positions returns the Position of each line.
func Positions(lines []AxisLine) []float64 {
	out := make([]float64, len(lines))
	for i, l := range lines {
		out[i] = l.Position
	}
	return out
}

// AxisOptions controls DetectAxisLines.
type AxisOptions struct {
	// AngleTolerance is the maximum skew in degrees.
	AngleTolerance float64

	// MinLineFraction is the minimum number of votes as a fraction of the
	// line's span: image height for vertical lines, width for horizontal.
	MinLineFraction float64

	// MaxLines caps the lines returned per orientation. Zero means 50.
	MaxLines int
}

// DetectAxisLines runs a Hough transform restricted to angles within
// AngleTolerance of the two image axes.
//
// The accumulator is sampled at one-degree steps. Peaks must be local maxima
// in a 5x5 neighbourhood of (rho, theta); ties resolve to the lower index so
// a plateau yields a single line.
func DetectAxisLines(edges imaging.EdgeMap, opts AxisOptions) *LinesResult {
	width, height := edges.Width(), edges.Height()
	result := &LinesResult{Vertical: []AxisLine{}, Horizontal: []AxisLine{}}
	if width == 0 || height == 0 {
		return result
	}
	if opts.MaxLines <= 0 {
		opts.MaxLines = 50
	}
	tol := int(math.Floor(opts.AngleTolerance))

	points := make([]Point, 0)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if edges[y][x] {
				points = append(points, Point{X: x, Y: y})
			}
		}
	}

	vThetas := make([]float64, 0, 2*tol+1)
	hThetas := make([]float64, 0, 2*tol+1)
	for d := -tol; d <= tol; d++ {
		vThetas = append(vThetas, float64(d))
		hThetas = append(hThetas, float64(90+d))
	}

	result.Vertical = houghAxis(points, width, height, vThetas, Vertical,
		int(math.Ceil(opts.MinLineFraction*float64(height))), opts.MaxLines)
	result.Horizontal = houghAxis(points, width, height, hThetas, Horizontal,
		int(math.Ceil(opts.MinLineFraction*float64(width))), opts.MaxLines)
	return result
}

func houghAxis(points []Point, width, height int, thetas []float64, orient Orientation, minVotes, maxLines int) []AxisLine {
	maxDist := int(math.Ceil(math.Hypot(float64(width), float64(height))))
	numRho := 2*maxDist + 1

	cosT := make([]float64, len(thetas))
	sinT := make([]float64, len(thetas))
	for i, t := range thetas {
		cosT[i] = math.Cos(t * math.Pi / 180)
		sinT[i] = math.Sin(t * math.Pi / 180)
	}

	accumulator := make([][]int, numRho)
	for i := range accumulator {
		accumulator[i] = make([]int, len(thetas))
	}

	// Vote in Hough space
	for _, p := range points {
		for ti := range thetas {
			rho := float64(p.X)*cosT[ti] + float64(p.Y)*sinT[ti]
			accumulator[int(math.Round(rho))+maxDist][ti]++
		}
	}

	type peak struct {
		rho, theta, votes int
	}
	peaks := make([]peak, 0)
	threshold := max(minVotes, 1)

	for r := 0; r < numRho; r++ {
		for ti := range thetas {
			v := accumulator[r][ti]
			if v < threshold {
				continue
			}
			isMax := true
			for dr := -2; dr <= 2 && isMax; dr++ {
				for dt := -2; dt <= 2 && isMax; dt++ {
					if dr == 0 && dt == 0 {
						continue
					}
					nr, nt := r+dr, ti+dt
					if nr < 0 || nr >= numRho || nt < 0 || nt >= len(thetas) {
						continue
					}
					n := accumulator[nr][nt]
					if n > v || (n == v && (nr < r || (nr == r && nt < ti))) {
						isMax = false
					}
				}
			}
			if isMax {
				peaks = append(peaks, peak{rho: r - maxDist, theta: ti, votes: v})
			}
		}
	}

	sort.SliceStable(peaks, func(i, j int) bool {
		return peaks[i].votes > peaks[j].votes
	})

	lines := make([]AxisLine, 0, min(len(peaks), maxLines))
	for _, pk := range peaks {
		if len(lines) >= maxLines {
			break
		}
		c, s := cosT[pk.theta], sinT[pk.theta]
		rho := float64(pk.rho)

		line := AxisLine{Orientation: orient, Votes: pk.votes}
		if orient == Vertical {
			line.Position = (rho - float64(height)/2*s) / c
			line.Skew = thetas[pk.theta]
		} else {
			line.Position = (rho - float64(width)/2*c) / s
			line.Skew = thetas[pk.theta] - 90
		}
		line.Position = math.Round(line.Position*10) / 10
		line.Start, line.End, line.Length = traceExtent(points, c, s, rho)
		lines = append(lines, line)
	}
	return lines
}

// traceExtent finds the supporting edge pixels furthest apart along the line.
func traceExtent(points []Point, cosA, sinA, rho float64) (start, end Point, length float64) {
	minAlong, maxAlong := math.MaxFloat64, -math.MaxFloat64
	for _, p := range points {
		dist := math.Abs(float64(p.X)*cosA + float64(p.Y)*sinA - rho)
		if dist >= 2.0 {
			continue
		}
		along := -float64(p.X)*sinA + float64(p.Y)*cosA
		if along < minAlong {
			minAlong = along
			start = p
		}
		if along > maxAlong {
			maxAlong = along
			end = p
		}
	}
	dx := float64(end.X - start.X)
	dy := float64(end.Y - start.Y)
	return start, end, math.Round(math.Hypot(dx, dy)*10) / 10
}

// MidlineBand filters lines whose Position lies within [lo, hi].
func MidlineBand(lines []AxisLine, lo, hi float64) []AxisLine {
	out := make([]AxisLine, 0, len(lines))
	for _, l := range lines {
		if l.Position >= lo && l.Position <= hi {
			out = append(out, l)
		}
	}
	return out
}

// Bounds converts an image.Rectangle to the JSON shape used by the tools.
type Bounds struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// BoundsOf returns r as Bounds.
func BoundsOf(r image.Rectangle) Bounds {
	return Bounds{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}
