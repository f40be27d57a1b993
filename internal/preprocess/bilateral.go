package preprocess

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/parallel"

	"github.com/ironsheep/formscan/internal/imaging"
)

// Bilateral smooths img while preserving edges.
//
// Each output pixel is a weighted mean over a disc of the given diameter.
// A neighbour's weight is the product of a spatial Gaussian (sigmaSpace, in
// pixels) and a range Gaussian on the intensity difference (sigmaColor, in
// gray levels). Borders use reflect-101.
func Bilateral(img *image.Gray, diameter int, sigmaColor, sigmaSpace float64) *image.Gray {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, width, height))
	if width == 0 || height == 0 {
		return out
	}

	if sigmaColor <= 0 {
		sigmaColor = 1
	}
	if sigmaSpace <= 0 {
		sigmaSpace = 1
	}
	radius := diameter / 2
	if diameter <= 0 {
		radius = int(math.Round(sigmaSpace * 1.5))
	}
	radius = max(radius, 1)

	colorCoeff := -0.5 / (sigmaColor * sigmaColor)
	spaceCoeff := -0.5 / (sigmaSpace * sigmaSpace)

	var colorWeight [256]float64
	for i := range colorWeight {
		colorWeight[i] = math.Exp(float64(i*i) * colorCoeff)
	}

	type tap struct {
		dx, dy int
		w      float64
	}
	var taps []tap
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			r2 := dx*dx + dy*dy
			if r2 > radius*radius {
				continue
			}
			taps = append(taps, tap{dx, dy, math.Exp(float64(r2) * spaceCoeff)})
		}
	}

	at := func(x, y int) uint8 {
		return img.Pix[img.PixOffset(b.Min.X+imaging.Reflect101(x, width), b.Min.Y+imaging.Reflect101(y, height))]
	}

	parallel.Line(height, func(start, end int) {
		for y := start; y < end; y++ {
			dst := out.Pix[out.PixOffset(0, y):]
			for x := 0; x < width; x++ {
				center := int(at(x, y))
				var sum, wsum float64
				for _, t := range taps {
					v := int(at(x+t.dx, y+t.dy))
					d := v - center
					if d < 0 {
						d = -d
					}
					w := t.w * colorWeight[d]
					sum += w * float64(v)
					wsum += w
				}
				dst[x] = saturate(math.Round(sum / wsum))
			}
		}
	})
	return out
}
