// Package augment expands a labeled region into a fixed battery of
// label-preserving variants for the training store.
package augment

import (
	"image"
	"image/color"
	"math"
	"math/rand/v2"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ironsheep/formscan/internal/config"
	fsimaging "github.com/ironsheep/formscan/internal/imaging"
)

// TagOriginal marks the unmodified region.
const TagOriginal = config.TagOriginal

// Variant is one generated image and its stable tag.
type Variant struct {
	Tag   string
	Image *image.Gray
}

// Engine applies the configured transformations.
type Engine struct {
	cfg config.AugmentationConfig
}

// New returns an Engine for cfg.
func New(cfg config.AugmentationConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Tags lists the variant tags Augment produces, in order.
func (e *Engine) Tags() []string {
	return e.cfg.Tags()
}

// Augment returns the original region followed by its variants. Noise is
// drawn from a generator seeded with seed, so equal inputs and seeds give
// equal outputs. Every variant has region's dimensions.
func (e *Engine) Augment(region *image.Gray, seed uint64) []Variant {
	src := fsimaging.ToGray(region)
	out := []Variant{{Tag: TagOriginal, Image: src}}

	for _, deg := range e.cfg.Rotations {
		out = append(out, Variant{Tag: RotationTag(deg), Image: Rotate(src, deg)})
	}
	for _, f := range e.cfg.Brightness {
		out = append(out, Variant{Tag: BrightnessTag(f), Image: Brightness(src, f)})
	}
	if e.cfg.NoiseSigma > 0 {
		out = append(out, Variant{
			Tag:   NoiseTag(e.cfg.NoiseSigma),
			Image: Noise(src, e.cfg.NoiseSigma, seed, 1),
		})
		if e.cfg.Combined {
			out = append(out, Variant{
				Tag:   config.CombinedTag(e.cfg.CombinedRotation, e.cfg.NoiseSigma),
				Image: Noise(Rotate(src, e.cfg.CombinedRotation), e.cfg.NoiseSigma, seed, 2),
			})
		}
	}
	return out
}

// RotationTag formats degrees as rot_p15 (+1.5) or rot_m15 (-1.5).
func RotationTag(deg float64) string { return config.RotationTag(deg) }

// BrightnessTag formats a factor as a percentage, e.g. bright_090.
func BrightnessTag(factor float64) string { return config.BrightnessTag(factor) }

// NoiseTag formats sigma as a percentage of full scale, e.g. noise_02.
func NoiseTag(sigma float64) string { return config.NoiseTag(sigma) }

// Rotate turns img by deg degrees about its center using
// bilinear sampling. Samples outside the image are mirrored (reflect-101).
func Rotate(img *image.Gray, deg float64) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}

	rad := deg * math.Pi / 180
	cosA, sinA := math.Cos(rad), math.Sin(rad)
	cx, cy := float64(w-1)/2, float64(h-1)/2

	at := func(x, y int) float64 {
		return float64(img.Pix[img.PixOffset(b.Min.X+fsimaging.Reflect101(x, w), b.Min.Y+fsimaging.Reflect101(y, h))])
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			// Inverse mapping: rotate the destination point back by -deg.
			sx := cosA*dx - sinA*dy + cx
			sy := sinA*dx + cosA*dy + cy

			x0, y0 := int(math.Floor(sx)), int(math.Floor(sy))
			fx, fy := sx-float64(x0), sy-float64(y0)
			top := at(x0, y0)*(1-fx) + at(x0+1, y0)*fx
			bot := at(x0, y0+1)*(1-fx) + at(x0+1, y0+1)*fx
			out.Pix[out.PixOffset(x, y)] = clip(top*(1-fy) + bot*fy)
		}
	}
	return out
}

// Brightness scales every pixel by factor.
func Brightness(img *image.Gray, factor float64) *image.Gray {
	adjusted := imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clip(float64(c.R) * factor),
			G: clip(float64(c.G) * factor),
			B: clip(float64(c.B) * factor),
			A: c.A,
		}
	})
	return fsimaging.ToGray(adjusted)
}

// Noise adds zero-mean Gaussian noise with standard deviation sigma*255.
// stream selects an independent sequence for the same seed.
func Noise(img *image.Gray, sigma float64, seed, stream uint64) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	dist := distuv.Normal{
		Mu:    0,
		Sigma: sigma * 255,
		Src:   rand.NewPCG(seed, stream),
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := float64(img.Pix[img.PixOffset(b.Min.X+x, b.Min.Y+y)])
			out.Pix[out.PixOffset(x, y)] = clip(v + dist.Rand())
		}
	}
	return out
}

func clip(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
