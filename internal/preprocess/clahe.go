package preprocess

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/parallel"

	"github.com/ironsheep/formscan/internal/imaging"
)

const histBins = 256

// CLAHE applies contrast-limited adaptive histogram equalization.
//
// The image is divided into tiles x tiles cells. Each cell's histogram is
// clipped at clipLimit * cellArea / 256 with the excess spread evenly over
// all bins, and its cumulative distribution becomes a lookup table. Every
// output pixel is a bilinear blend of the four nearest cell tables. Cells
// that would extend past the image edge sample it with reflect-101 borders
// so all cells have the same area.
func CLAHE(img *image.Gray, clipLimit float64, tiles int) *image.Gray {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, width, height))
	if width == 0 || height == 0 {
		return out
	}
	tiles = max(tiles, 1)

	tileW := (width + tiles - 1) / tiles
	tileH := (height + tiles - 1) / tiles
	tileArea := tileW * tileH

	clip := 0
	if clipLimit > 0 {
		clip = max(int(clipLimit*float64(tileArea)/histBins), 1)
	}

	at := func(x, y int) uint8 {
		return img.Pix[img.PixOffset(b.Min.X+imaging.Reflect101(x, width), b.Min.Y+imaging.Reflect101(y, height))]
	}

	luts := make([][histBins]uint8, tiles*tiles)
	parallel.Line(tiles*tiles, func(start, end int) {
		for t := start; t < end; t++ {
			tx, ty := t%tiles, t/tiles
			var hist [histBins]int
			for y := ty * tileH; y < (ty+1)*tileH; y++ {
				for x := tx * tileW; x < (tx+1)*tileW; x++ {
					hist[at(x, y)]++
				}
			}
			if clip > 0 {
				clipHistogram(&hist, clip)
			}
			scale := float64(histBins-1) / float64(tileArea)
			sum := 0
			for i, n := range hist {
				sum += n
				luts[t][i] = saturate(math.Round(float64(sum) * scale))
			}
		}
	})

	invTW := 1.0 / float64(tileW)
	invTH := 1.0 / float64(tileH)
	parallel.Line(height, func(start, end int) {
		for y := start; y < end; y++ {
			tyf := float64(y)*invTH - 0.5
			ty1 := int(math.Floor(tyf))
			ty2 := ty1 + 1
			ya := tyf - float64(ty1)
			ty1 = max(ty1, 0)
			ty2 = min(ty2, tiles-1)

			row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
			dst := out.Pix[out.PixOffset(0, y):]
			for x := 0; x < width; x++ {
				txf := float64(x)*invTW - 0.5
				tx1 := int(math.Floor(txf))
				tx2 := tx1 + 1
				xa := txf - float64(tx1)
				tx1 = max(tx1, 0)
				tx2 = min(tx2, tiles-1)

				v := row[x]
				top := float64(luts[ty1*tiles+tx1][v])*(1-xa) + float64(luts[ty1*tiles+tx2][v])*xa
				bot := float64(luts[ty2*tiles+tx1][v])*(1-xa) + float64(luts[ty2*tiles+tx2][v])*xa
				dst[x] = saturate(math.Round(top*(1-ya) + bot*ya))
			}
		}
	})
	return out
}

// clipHistogram caps each bin at limit and redistributes the excess.
func clipHistogram(hist *[histBins]int, limit int) {
	excess := 0
	for i, n := range hist {
		if n > limit {
			excess += n - limit
			hist[i] = limit
		}
	}
	batch := excess / histBins
	residual := excess - batch*histBins
	for i := range hist {
		hist[i] += batch
	}
	if residual > 0 {
		step := max(histBins/residual, 1)
		for i := 0; i < histBins && residual > 0; i += step {
			hist[i]++
			residual--
		}
	}
}

func saturate(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
