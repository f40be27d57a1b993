package detection

import (
	"image"
	"math"

	"github.com/ironsheep/formscan/internal/imaging"
)

// InkContrast is how much darker than the paper a pixel must be to count as
// ink, in gray levels.
const InkContrast = 60

// InkReport describes how much marking a region contains.
type InkReport struct {
	// PaperLevel is the 90th percentile intensity, taken as the paper color.
	PaperLevel uint8 `json:"paper_level"`

	// InkFraction is the share of pixels darker than PaperLevel - InkContrast.
	InkFraction float64 `json:"ink_fraction"`

	// EdgeDensity is the share of Canny edge pixels.
	EdgeDensity float64 `json:"edge_density"`

	// Blank is true when InkFraction is below the configured minimum.
	Blank bool `json:"blank"`
}

// AnalyzeInk measures ink coverage of a grayscale region. Regions with an
// ink fraction below minInkFraction are reported blank.
func AnalyzeInk(img *image.Gray, minInkFraction float64) InkReport {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return InkReport{Blank: true}
	}

	var hist [256]int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			hist[row[x]]++
		}
	}

	paper := percentile(&hist, total, 0.90)
	cut := int(paper) - InkContrast
	ink := 0
	for v := 0; v < cut && v < 256; v++ {
		ink += hist[v]
	}

	edges := imaging.Canny(img, 50, 150)
	fraction := float64(ink) / float64(total)
	return InkReport{
		PaperLevel:  paper,
		InkFraction: math.Round(fraction*10000) / 10000,
		EdgeDensity: math.Round(float64(edges.Count(image.Rect(0, 0, b.Dx(), b.Dy())))/float64(total)*10000) / 10000,
		Blank:       fraction < minInkFraction,
	}
}

// percentile returns the smallest value v such that at least q of the
// pixels are <= v.
func percentile(hist *[256]int, total int, q float64) uint8 {
	target := int(math.Ceil(q * float64(total)))
	acc := 0
	for v, n := range hist {
		acc += n
		if acc >= target {
			return uint8(v)
		}
	}
	return 255
}
