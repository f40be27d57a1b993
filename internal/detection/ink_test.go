package detection

import (
	"image"
	"image/color"
	"testing"
)

func TestAnalyzeInk_Blank(t *testing.T) {
	report := AnalyzeInk(createTestImage(256, 64, 230), 0.002)
	if !report.Blank {
		t.Error("uniform paper should be blank")
	}
	if report.InkFraction != 0 {
		t.Errorf("InkFraction: got %v, want 0", report.InkFraction)
	}
	if report.PaperLevel != 230 {
		t.Errorf("PaperLevel: got %d, want 230", report.PaperLevel)
	}
}

func TestAnalyzeInk_Marked(t *testing.T) {
	img := createTestImage(256, 64, 230)
	// A circled rating: a small dark ring.
	for y := 20; y < 44; y++ {
		for x := 120; x < 144; x++ {
			dx, dy := x-132, y-32
			r2 := dx*dx + dy*dy
			if r2 >= 81 && r2 <= 144 {
				img.SetGray(x, y, color.Gray{Y: 40})
			}
		}
	}

	report := AnalyzeInk(img, 0.002)
	if report.Blank {
		t.Error("marked region reported blank")
	}
	if report.InkFraction <= 0.002 {
		t.Errorf("InkFraction: got %v, want > 0.002", report.InkFraction)
	}
	if report.EdgeDensity <= 0 {
		t.Errorf("EdgeDensity: got %v, want > 0", report.EdgeDensity)
	}
}

func TestAnalyzeInk_Empty(t *testing.T) {
	report := AnalyzeInk(image.NewGray(image.Rect(0, 0, 0, 0)), 0.002)
	if !report.Blank {
		t.Error("empty image should be blank")
	}
}

func TestPercentile(t *testing.T) {
	var hist [256]int
	hist[10] = 50
	hist[200] = 50
	if got := percentile(&hist, 100, 0.5); got != 10 {
		t.Errorf("median: got %d, want 10", got)
	}
	if got := percentile(&hist, 100, 0.9); got != 200 {
		t.Errorf("p90: got %d, want 200", got)
	}
}
