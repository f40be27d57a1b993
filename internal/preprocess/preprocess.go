// Package preprocess turns a raw form photograph into the single-channel,
// contrast-normalized image that boundary detection and region partitioning
// operate on.
//
// The steps are fixed: BT.601 grayscale, CLAHE, then a bilateral filter.
// Every parameter comes from config.PreprocessConfig, which is part of the
// pipeline fingerprint. Two backends exist: a pure Go implementation
// (default) and an OpenCV implementation compiled with the gocv build tag.
package preprocess

import (
	"image"

	"github.com/ironsheep/formscan/internal/config"
	"github.com/ironsheep/formscan/internal/errors"
	"github.com/ironsheep/formscan/internal/imaging"
)

// Backend enhances an already-grayscale image.
type Backend interface {
	Name() string
	Enhance(img *image.Gray) (*image.Gray, error)
}

// Preprocessor applies the configured preprocessing chain.
// It holds no mutable state and is safe for concurrent use.
type Preprocessor struct {
	cfg     config.PreprocessConfig
	backend Backend
}

// New returns a Preprocessor for cfg. Selecting the opencv backend in a build
// without the gocv tag is a configuration error.
func New(cfg config.PreprocessConfig) (*Preprocessor, error) {
	var backend Backend
	switch cfg.Backend {
	case "", config.BackendNative:
		backend = nativeBackend{cfg: cfg}
	case config.BackendOpenCV:
		b, err := newOpenCVBackend(cfg)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, errors.Newf("unknown preprocess backend %q", cfg.Backend).
			Component("preprocess").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &Preprocessor{cfg: cfg, backend: backend}, nil
}

// Backend returns the active backend name.
func (p *Preprocessor) Backend() string { return p.backend.Name() }

// Process converts raw to the processed image. The result has raw's extent,
// starts at the origin and never aliases raw's pixels.
func (p *Preprocessor) Process(raw *imaging.RawImage) (*image.Gray, error) {
	if raw == nil || raw.Image == nil {
		return nil, &imaging.LoadError{Path: "", Err: imaging.ErrEmptyImage}
	}
	b := raw.Image.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &imaging.LoadError{Path: raw.Path, Err: imaging.ErrEmptyImage}
	}
	return p.Gray(imaging.ToGray(raw.Image))
}

// Gray runs the enhancement steps on an image that is already grayscale.
func (p *Preprocessor) Gray(img *image.Gray) (*image.Gray, error) {
	out, err := p.backend.Enhance(img)
	if err != nil {
		return nil, errors.New(err).
			Component("preprocess").
			Category(errors.CategoryGeneric).
			Context("backend", p.backend.Name()).
			Build()
	}
	return out, nil
}

type nativeBackend struct {
	cfg config.PreprocessConfig
}

func (nativeBackend) Name() string { return config.BackendNative }

func (n nativeBackend) Enhance(img *image.Gray) (*image.Gray, error) {
	eq := CLAHE(img, n.cfg.ClaheClipLimit, n.cfg.ClaheTiles)
	return Bilateral(eq, n.cfg.BilateralDiameter, n.cfg.SigmaColor, n.cfg.SigmaSpace), nil
}
