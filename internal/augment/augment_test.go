package augment

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/formscan/internal/config"
	fsimaging "github.com/ironsheep/formscan/internal/imaging"
)

func stripes(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(220)
			if (x/8)%2 == 0 {
				v = 20
			}
			img.Pix[img.PixOffset(x, y)] = v
		}
	}
	return img
}

func extremes(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		if i%3 == 0 {
			img.Pix[i] = 255
		}
	}
	return img
}

func TestAugment_DefaultBattery(t *testing.T) {
	e := New(config.DefaultPipeline().Augmentation)
	variants := e.Augment(stripes(256, 64), 42)

	tags := make([]string, len(variants))
	for i, v := range variants {
		tags[i] = v.Tag
	}
	want := []string{"orig", "rot_p15", "rot_m15", "bright_110", "bright_090", "noise_02", "rot_p10_noise_02"}
	assert.Equal(t, want, tags)
	assert.Equal(t, want, e.Tags())
}

func TestAugment_DimensionsPreserved(t *testing.T) {
	e := New(config.DefaultPipeline().Augmentation)
	for _, size := range []image.Point{{256, 64}, {31, 17}, {1, 1}} {
		src := extremes(size.X, size.Y)
		for _, v := range e.Augment(src, 7) {
			assert.Equal(t, image.Rect(0, 0, size.X, size.Y), v.Image.Bounds(), "variant %s at %v", v.Tag, size)
		}
	}
}

func TestAugment_SubImageInput(t *testing.T) {
	e := New(config.DefaultPipeline().Augmentation)
	sub := stripes(100, 100).SubImage(image.Rect(10, 20, 60, 45)).(*image.Gray)
	for _, v := range e.Augment(sub, 1) {
		assert.Equal(t, image.Rect(0, 0, 50, 25), v.Image.Bounds(), v.Tag)
	}
}

func TestAugment_Deterministic(t *testing.T) {
	e := New(config.DefaultPipeline().Augmentation)
	src := stripes(64, 32)

	a := e.Augment(src, 99)
	b := e.Augment(src, 99)
	require.Len(t, b, len(a))
	for i := range a {
		assert.True(t, fsimaging.CompareGray(a[i].Image, b[i].Image, 0).Identical, a[i].Tag)
	}

	c := e.Augment(src, 100)
	assert.False(t, fsimaging.CompareGray(a[5].Image, c[5].Image, 0).Identical, "different seeds should change the noise")
}

func TestAugment_OriginalUnchanged(t *testing.T) {
	e := New(config.DefaultPipeline().Augmentation)
	src := stripes(40, 20)
	before := append([]uint8(nil), src.Pix...)

	variants := e.Augment(src, 3)
	assert.Equal(t, before, src.Pix)
	assert.True(t, fsimaging.CompareGray(src, variants[0].Image, 0).Identical)
}

func TestBrightness(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = 100
	}
	src.Pix[0] = 250

	up := Brightness(src, 1.1)
	assert.Equal(t, uint8(110), up.GrayAt(1, 1).Y)
	assert.Equal(t, uint8(255), up.GrayAt(0, 0).Y, "values clip at 255")

	down := Brightness(src, 0.9)
	assert.Equal(t, uint8(90), down.GrayAt(1, 1).Y)
}

func TestRotate_ZeroIsIdentity(t *testing.T) {
	src := stripes(33, 21)
	assert.True(t, fsimaging.CompareGray(src, Rotate(src, 0), 0).Identical)
}

func TestRotate_UniformStaysUniform(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 50, 20))
	for i := range src.Pix {
		src.Pix[i] = 77
	}
	out := Rotate(src, 1.5)
	for _, v := range out.Pix {
		require.Equal(t, uint8(77), v, "reflect border must not introduce fill color")
	}
}

func TestNoise_Statistics(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 200, 200))
	for i := range src.Pix {
		src.Pix[i] = 128
	}
	out := Noise(src, 0.02, 5, 1)

	var sum float64
	changed := 0
	for _, v := range out.Pix {
		sum += float64(v)
		if v != 128 {
			changed++
		}
	}
	mean := sum / float64(len(out.Pix))
	assert.InDelta(t, 128, mean, 0.5)
	assert.Greater(t, changed, len(out.Pix)/2)
}

func TestTags(t *testing.T) {
	assert.Equal(t, "rot_p15", RotationTag(1.5))
	assert.Equal(t, "rot_m15", RotationTag(-1.5))
	assert.Equal(t, "rot_p10", RotationTag(1.0))
	assert.Equal(t, "rot_m20", RotationTag(-2))
	assert.Equal(t, "bright_110", BrightnessTag(1.1))
	assert.Equal(t, "bright_090", BrightnessTag(0.9))
	assert.Equal(t, "noise_02", NoiseTag(0.02))
	assert.Equal(t, "noise_05", NoiseTag(0.05))
}
