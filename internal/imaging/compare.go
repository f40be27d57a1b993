package imaging

import (
	"image"
	"math"
)

// CompareResult summarizes the pixel difference between two grayscale
// images of the same role, e.g. a region cropped twice from one form.
type CompareResult struct {
	SimilarityScore float64 `json:"similarity_score"`
	PixelsDifferent int     `json:"pixels_different"`
	TotalPixels     int     `json:"total_pixels"`
	SameSize        bool    `json:"same_size"`
	Identical       bool    `json:"identical"`
	MaxDiff         int     `json:"max_diff"`
	MeanAbsDiff     float64 `json:"mean_abs_diff"`
}

// CompareGray compares a and b pixel by pixel over their common extent.
//
// A pixel counts as different when its values differ by more than tolerance.
// Identical is true only for equal sizes with zero difference everywhere.
func CompareGray(a, b *image.Gray, tolerance int) *CompareResult {
	ab, bb := a.Bounds(), b.Bounds()
	sameSize := ab.Dx() == bb.Dx() && ab.Dy() == bb.Dy()

	minW := min(ab.Dx(), bb.Dx())
	minH := min(ab.Dy(), bb.Dy())
	total := minW * minH

	different, maxDiff := 0, 0
	var sum float64
	for dy := 0; dy < minH; dy++ {
		for dx := 0; dx < minW; dx++ {
			va := a.GrayAt(ab.Min.X+dx, ab.Min.Y+dy).Y
			vb := b.GrayAt(bb.Min.X+dx, bb.Min.Y+dy).Y
			d := absDiff(va, vb)
			sum += float64(d)
			if d > maxDiff {
				maxDiff = d
			}
			if d > tolerance {
				different++
			}
		}
	}

	res := &CompareResult{
		PixelsDifferent: different,
		TotalPixels:     total,
		SameSize:        sameSize,
		MaxDiff:         maxDiff,
		Identical:       sameSize && maxDiff == 0,
	}
	if total > 0 {
		res.SimilarityScore = math.Round((1-float64(different)/float64(total))*1000) / 1000
		res.MeanAbsDiff = math.Round(sum/float64(total)*100) / 100
	}
	return res
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
