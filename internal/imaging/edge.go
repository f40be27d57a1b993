package imaging

import (
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/parallel"
)

// EdgeMap is a binary edge image indexed [y][x].
type EdgeMap [][]bool

// Width returns the number of columns.
func (m EdgeMap) Width() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Height returns the number of rows.
func (m EdgeMap) Height() int { return len(m) }

// Count returns the number of edge pixels inside rect, clipped to the map.
func (m EdgeMap) Count(rect image.Rectangle) int {
	rect = rect.Intersect(image.Rect(0, 0, m.Width(), m.Height()))
	n := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if m[y][x] {
				n++
			}
		}
	}
	return n
}

// Image renders the map as white edges on black.
func (m EdgeMap) Image() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, m.Width(), m.Height()))
	for y, row := range m {
		for x, on := range row {
			if on {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// Canny performs Canny edge detection on a grayscale image.
//
// Parameters:
//   - img: Grayscale source, typically the preprocessed form.
//   - thresholdLow: Gradient magnitude (0-255 scale) below which pixels are
//     discarded. Typical value: 50.
//   - thresholdHigh: Gradient magnitude above which pixels are strong edges.
//     Typical value: 150.
//
// Returns an EdgeMap with the same extent as img.
//
// # Algorithm
//
//  1. Gaussian blur: 5x5 kernel to reduce noise
//
//  2. Gradient computation: Sobel operators for X and Y gradients
//     magnitude = sqrt(Gx² + Gy²)
//     direction = atan2(Gy, Gx)
//
//  3. Non-maximum suppression: thin edges to 1-pixel width by keeping only
//     local maxima in the gradient direction
//
//  4. Double threshold: pixels above thresholdHigh are kept; pixels between
//     the thresholds are kept only when one of their 8 immediate neighbours
//     is strong. Weak chains are not followed further.
//
// Rows are processed in parallel; each stage reads only the previous
// stage's output, so the result does not depend on scheduling.
func Canny(img *image.Gray, thresholdLow, thresholdHigh int) EdgeMap {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	gray := make([][]float64, height)
	for y := 0; y < height; y++ {
		gray[y] = make([]float64, width)
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		row := img.Pix[off : off+width]
		for x := 0; x < width; x++ {
			gray[y][x] = float64(row[x]) / 255.0
		}
	}

	blurred := gaussianBlur(gray, width, height)

	magnitude := make([][]float64, height)
	direction := make([][]float64, height)
	sobelX := [3][3]float64{{-1, 0, 1}, {-2, 0, 2}, {-1, 0, 1}}
	sobelY := [3][3]float64{{-1, -2, -1}, {0, 0, 0}, {1, 2, 1}}

	parallel.Line(height, func(start, end int) {
		for y := start; y < end; y++ {
			magnitude[y] = make([]float64, width)
			direction[y] = make([]float64, width)
			for x := 0; x < width; x++ {
				var gx, gy float64
				for ky := -1; ky <= 1; ky++ {
					for kx := -1; kx <= 1; kx++ {
						py := clamp(y+ky, 0, height-1)
						px := clamp(x+kx, 0, width-1)
						gx += blurred[py][px] * sobelX[ky+1][kx+1]
						gy += blurred[py][px] * sobelY[ky+1][kx+1]
					}
				}
				magnitude[y][x] = math.Sqrt(gx*gx + gy*gy)
				direction[y][x] = math.Atan2(gy, gx)
			}
		}
	})

	// Non-maximum suppression
	suppressed := make([][]float64, height)
	parallel.Line(height, func(start, end int) {
		for y := start; y < end; y++ {
			suppressed[y] = make([]float64, width)
			if y == 0 || y == height-1 {
				continue
			}
			for x := 1; x < width-1; x++ {
				angle := direction[y][x]
				mag := magnitude[y][x]

				var n1, n2 float64
				switch {
				case (angle >= -math.Pi/8 && angle < math.Pi/8) || angle >= 7*math.Pi/8 || angle < -7*math.Pi/8:
					n1, n2 = magnitude[y][x-1], magnitude[y][x+1]
				case (angle >= math.Pi/8 && angle < 3*math.Pi/8) || (angle >= -7*math.Pi/8 && angle < -5*math.Pi/8):
					n1, n2 = magnitude[y-1][x+1], magnitude[y+1][x-1]
				case (angle >= 3*math.Pi/8 && angle < 5*math.Pi/8) || (angle >= -5*math.Pi/8 && angle < -3*math.Pi/8):
					n1, n2 = magnitude[y-1][x], magnitude[y+1][x]
				default:
					n1, n2 = magnitude[y-1][x-1], magnitude[y+1][x+1]
				}
				if mag >= n1 && mag >= n2 {
					suppressed[y][x] = mag
				}
			}
		}
	})

	// Double threshold, weak pixels need a strong neighbour
	lowThresh := float64(thresholdLow) / 255.0
	highThresh := float64(thresholdHigh) / 255.0
	edges := make(EdgeMap, height)
	parallel.Line(height, func(start, end int) {
		for y := start; y < end; y++ {
			edges[y] = make([]bool, width)
			for x := 0; x < width; x++ {
				val := suppressed[y][x]
				switch {
				case val >= highThresh:
					edges[y][x] = true
				case val >= lowThresh:
					edges[y][x] = hasStrongNeighbor(suppressed, x, y, width, height, highThresh)
				}
			}
		}
	})
	return edges
}

func hasStrongNeighbor(s [][]float64, x, y, width, height int, high float64) bool {
	for ky := -1; ky <= 1; ky++ {
		for kx := -1; kx <= 1; kx++ {
			py := clamp(y+ky, 0, height-1)
			px := clamp(x+kx, 0, width-1)
			if s[py][px] >= high {
				return true
			}
		}
	}
	return false
}

// EdgeDetect runs Canny and encodes the result as PNG for tool responses.
func EdgeDetect(img image.Image, thresholdLow, thresholdHigh int) (*EncodedImage, error) {
	return EncodePNG(Canny(ToGray(img), thresholdLow, thresholdHigh).Image())
}

// gaussianBlur applies a 5x5 Gaussian blur to reduce noise before edge detection.
//
// Uses a standard 5x5 Gaussian kernel with sigma ≈ 1.4:
//
//	1  4  7  4  1
//	4 16 26 16  4
//	7 26 41 26  7
//	4 16 26 16  4
//	1  4  7  4  1
//
// Total kernel sum = 273, used for normalization.
// Border pixels use clamped (replicated) edge values.
func gaussianBlur(img [][]float64, width, height int) [][]float64 {
	kernel := [5][5]float64{
		{1, 4, 7, 4, 1},
		{4, 16, 26, 16, 4},
		{7, 26, 41, 26, 7},
		{4, 16, 26, 16, 4},
		{1, 4, 7, 4, 1},
	}
	const kernelSum = 273.0

	result := make([][]float64, height)
	parallel.Line(height, func(start, end int) {
		for y := start; y < end; y++ {
			result[y] = make([]float64, width)
			for x := 0; x < width; x++ {
				var sum float64
				for ky := -2; ky <= 2; ky++ {
					for kx := -2; kx <= 2; kx++ {
						py := clamp(y+ky, 0, height-1)
						px := clamp(x+kx, 0, width-1)
						sum += img[py][px] * kernel[ky+2][kx+2]
					}
				}
				result[y][x] = sum / kernelSum
			}
		}
	})
	return result
}

// clamp constrains an integer value to the range [lo, hi].
// Used for boundary handling in convolution operations.
func clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
