package preprocess

import (
	"image"
	"image/color"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/formscan/internal/config"
	"github.com/ironsheep/formscan/internal/errors"
	"github.com/ironsheep/formscan/internal/imaging"
)

// syntheticForm draws a noisy light page with a dark cross and a few marks.
func syntheticForm(width, height int, seed uint64) *image.RGBA {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(200 + rng.IntN(30))
			if x == width/2 || y == height*6/10 {
				v = 30
			}
			if (x/20+y/20)%7 == 0 && v > 60 {
				v -= 60
			}
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func lowContrast(width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(110 + (x*20)/width)})
		}
	}
	return img
}

func span(img *image.Gray) (lo, hi uint8) {
	lo, hi = 255, 0
	for _, v := range img.Pix {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

func TestProcess_Deterministic(t *testing.T) {
	p, err := New(config.DefaultPipeline().Preprocess)
	require.NoError(t, err)

	raw, err := imaging.FromImage(syntheticForm(160, 120, 7), "form.png")
	require.NoError(t, err)

	first, err := p.Process(raw)
	require.NoError(t, err)
	second, err := p.Process(raw)
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 160, 120), first.Bounds())
	assert.True(t, imaging.CompareGray(first, second, 0).Identical, "preprocessing must be reproducible")
}

func TestProcess_DoesNotModifySource(t *testing.T) {
	p, err := New(config.DefaultPipeline().Preprocess)
	require.NoError(t, err)

	src := lowContrast(64, 64)
	before := append([]uint8(nil), src.Pix...)
	raw, err := imaging.FromImage(src, "gray.png")
	require.NoError(t, err)

	_, err = p.Process(raw)
	require.NoError(t, err)
	assert.Equal(t, before, src.Pix)
}

func TestProcess_EmptyImage(t *testing.T) {
	p, err := New(config.DefaultPipeline().Preprocess)
	require.NoError(t, err)

	_, err = p.Process(&imaging.RawImage{Image: image.NewGray(image.Rect(0, 0, 0, 0)), Path: "blank.png"})
	var le *imaging.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "blank.png", le.Path)

	_, err = p.Process(nil)
	require.ErrorAs(t, err, &le)
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := config.DefaultPipeline().Preprocess
	cfg.Backend = "gpu"
	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestCLAHE_StretchesContrast(t *testing.T) {
	src := lowContrast(128, 128)
	out := CLAHE(src, 40, 8)

	srcLo, srcHi := span(src)
	outLo, outHi := span(out)
	assert.Greater(t, int(outHi)-int(outLo), int(srcHi)-int(srcLo))
}

func TestCLAHE_UniformStaysUniform(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 50, 30))
	for i := range src.Pix {
		src.Pix[i] = 140
	}
	out := CLAHE(src, 2.0, 8)
	lo, hi := span(out)
	assert.Equal(t, lo, hi)
}

func TestCLAHE_SubImage(t *testing.T) {
	full := lowContrast(100, 100)
	sub := full.SubImage(image.Rect(20, 20, 70, 60)).(*image.Gray)
	out := CLAHE(sub, 2.0, 4)
	assert.Equal(t, image.Rect(0, 0, 50, 40), out.Bounds())
}

func TestClipHistogram_PreservesMass(t *testing.T) {
	var hist [histBins]int
	hist[10] = 900
	hist[20] = 100
	clipHistogram(&hist, 40)

	total := 0
	for _, n := range hist {
		total += n
	}
	assert.Equal(t, 1000, total)
	assert.LessOrEqual(t, hist[10], 40+1+900/histBins)
}

func TestBilateral_PreservesStepEdge(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			if x >= 20 {
				src.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	out := Bilateral(src, 5, 50, 50)
	assert.LessOrEqual(t, out.GrayAt(19, 10).Y, uint8(2))
	assert.GreaterOrEqual(t, out.GrayAt(20, 10).Y, uint8(253))
}

func TestBilateral_SmoothsNoise(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 30, 30))
	for i := range src.Pix {
		src.Pix[i] = 120
		if i%2 == 0 {
			src.Pix[i] = 130
		}
	}
	out := Bilateral(src, 5, 50, 50)
	lo, hi := span(out)
	assert.Less(t, int(hi)-int(lo), 10)
}
