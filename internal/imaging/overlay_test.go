package imaging

import (
	"image"
	"image/color"
	"testing"
)

func TestPalette(t *testing.T) {
	p := Palette(4)
	if len(p) != 4 {
		t.Fatalf("len: got %d, want 4", len(p))
	}
	seen := map[color.RGBA]bool{}
	for _, c := range p {
		if c.A != 255 {
			t.Errorf("expected opaque color, got %v", c)
		}
		seen[c] = true
	}
	if len(seen) != 4 {
		t.Errorf("expected 4 distinct colors, got %d", len(seen))
	}
}

func TestOverlay(t *testing.T) {
	img := createInMemoryImage(200, 100, color.RGBA{0, 0, 0, 255})
	boxes := []OverlayBox{
		{Label: "1", Rect: image.Rect(10, 10, 90, 90), Bands: []int{40}},
		{Label: "2", Rect: image.Rect(110, 10, 190, 90)},
	}

	out := Overlay(img, boxes)
	if out.Bounds() != img.Bounds() {
		t.Fatalf("bounds: got %v, want %v", out.Bounds(), img.Bounds())
	}

	palette := Palette(2)
	if got := out.RGBAAt(50, 10); got != palette[0] {
		t.Errorf("top border of box 1: got %v, want %v", got, palette[0])
	}
	if got := out.RGBAAt(150, 89); got != palette[1] {
		t.Errorf("bottom border of box 2: got %v, want %v", got, palette[1])
	}
	if got := out.RGBAAt(60, 40); got != palette[0] {
		t.Errorf("band separator: got %v, want %v", got, palette[0])
	}
	if got := out.RGBAAt(100, 50); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("background between boxes changed: got %v", got)
	}

	// The source image is untouched.
	if r, _, _, _ := img.At(50, 10).RGBA(); r != 0 {
		t.Error("Overlay modified its input")
	}
}

func TestOverlay_BoxOutsideImage(t *testing.T) {
	img := createInMemoryImage(50, 50, color.White)
	out := Overlay(img, []OverlayBox{{Label: "9", Rect: image.Rect(100, 100, 200, 200)}})
	if out.Bounds() != img.Bounds() {
		t.Fatal("bounds changed")
	}
}

func TestOverlayPNG(t *testing.T) {
	img := createInMemoryImage(60, 40, color.White)
	res, err := OverlayPNG(img, []OverlayBox{{Label: "S1", Rect: image.Rect(0, 0, 30, 20)}})
	if err != nil {
		t.Fatalf("OverlayPNG failed: %v", err)
	}
	if res.Boxes != 1 || res.Width != 60 || res.Height != 40 {
		t.Errorf("unexpected result: %+v", res)
	}
}
