package imaging

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/lucasb-eyer/go-colorful"
)

// OverlayBox is one quadrant to draw: its outline, a short label and the y
// coordinates of the attribute band separators inside it.
type OverlayBox struct {
	Label string
	Rect  image.Rectangle
	Bands []int
}

// OverlayResult contains the annotated form.
type OverlayResult struct {
	EncodedImage
	Boxes int `json:"boxes"`
}

// Palette returns n visually distinct opaque colors spaced evenly in hue.
func Palette(n int) []color.RGBA {
	out := make([]color.RGBA, n)
	for i := range out {
		c := colorful.Hsv(float64(i)*360/float64(max(n, 1)), 0.85, 0.95)
		r, g, b := c.RGB255()
		out[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return out
}

// Overlay draws each box's outline (3 px), its band separators (1 px) and its
// label onto a copy of img.
func Overlay(img image.Image, boxes []OverlayBox) *image.RGBA {
	bounds := img.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, img, bounds.Min, draw.Src)

	colors := Palette(len(boxes))
	for i, box := range boxes {
		c := colors[i]
		r := box.Rect.Intersect(bounds)
		if r.Empty() {
			continue
		}
		for t := 0; t < 3; t++ {
			hline(result, r.Min.X, r.Max.X, r.Min.Y+t, c)
			hline(result, r.Min.X, r.Max.X, r.Max.Y-1-t, c)
			vline(result, r.Min.X+t, r.Min.Y, r.Max.Y, c)
			vline(result, r.Max.X-1-t, r.Min.Y, r.Max.Y, c)
		}
		for _, y := range box.Bands {
			hline(result, r.Min.X, r.Max.X, y, c)
		}
		if box.Label != "" {
			drawLabel(result, r.Min.X+5, r.Min.Y+5, box.Label, color.RGBA{255, 255, 255, 255}, c)
		}
	}
	return result
}

// OverlayPNG is Overlay followed by PNG encoding.
func OverlayPNG(img image.Image, boxes []OverlayBox) (*OverlayResult, error) {
	enc, err := EncodePNG(Overlay(img, boxes))
	if err != nil {
		return nil, err
	}
	return &OverlayResult{EncodedImage: *enc, Boxes: len(boxes)}, nil
}

func hline(img *image.RGBA, x0, x1, y int, c color.RGBA) {
	if y < img.Rect.Min.Y || y >= img.Rect.Max.Y {
		return
	}
	for x := max(x0, img.Rect.Min.X); x < min(x1, img.Rect.Max.X); x++ {
		img.SetRGBA(x, y, c)
	}
}

func vline(img *image.RGBA, x, y0, y1 int, c color.RGBA) {
	if x < img.Rect.Min.X || x >= img.Rect.Max.X {
		return
	}
	for y := max(y0, img.Rect.Min.Y); y < min(y1, img.Rect.Max.Y); y++ {
		img.SetRGBA(x, y, c)
	}
}

// drawLabel draws a text label at the given position using a 3x5 pixel font
// scaled 2x. Unknown runes render as blanks.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	glyphs := map[rune][]string{
		'0': {"111", "101", "101", "101", "111"},
		'1': {"010", "110", "010", "010", "111"},
		'2': {"111", "001", "111", "100", "111"},
		'3': {"111", "001", "111", "001", "111"},
		'4': {"101", "101", "111", "001", "001"},
		'5': {"111", "100", "111", "001", "111"},
		'6': {"111", "100", "111", "101", "111"},
		'7': {"111", "001", "001", "001", "001"},
		'8': {"111", "101", "111", "101", "111"},
		'9': {"111", "101", "111", "001", "111"},
		'S': {"111", "100", "111", "001", "111"},
		'-': {"000", "000", "111", "000", "000"},
	}

	const scale = 2
	bounds := img.Bounds()
	charWidth := 4 * scale
	labelWidth := len(text) * charWidth
	labelHeight := 6 * scale

	set := func(px, py int, c color.RGBA) {
		if px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y {
			img.SetRGBA(px, py, c)
		}
	}

	for dy := -scale; dy < labelHeight; dy++ {
		for dx := -scale; dx < labelWidth; dx++ {
			set(x+dx, y+dy, bg)
		}
	}

	cx := x
	for _, ch := range text {
		glyph, ok := glyphs[ch]
		if ok {
			for row, line := range glyph {
				for col, pixel := range line {
					if pixel != '1' {
						continue
					}
					for sy := 0; sy < scale; sy++ {
						for sx := 0; sx < scale; sx++ {
							set(cx+col*scale+sx, y+row*scale+sy, fg)
						}
					}
				}
			}
		}
		cx += charWidth
	}
}
