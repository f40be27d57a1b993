//go:build gocv

package preprocess

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ironsheep/formscan/internal/config"
)

type opencvBackend struct {
	cfg config.PreprocessConfig
}

func newOpenCVBackend(cfg config.PreprocessConfig) (Backend, error) {
	return opencvBackend{cfg: cfg}, nil
}

func (opencvBackend) Name() string { return config.BackendOpenCV }

// Enhance runs CLAHE and the bilateral filter through OpenCV.
func (o opencvBackend) Enhance(img *image.Gray) (*image.Gray, error) {
	b := img.Bounds()
	pix := make([]byte, b.Dx()*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		copy(pix[y*b.Dx():(y+1)*b.Dx()], img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):])
	}

	src, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8U, pix)
	if err != nil {
		return nil, fmt.Errorf("failed to create mat: %w", err)
	}
	defer src.Close()

	clahe := gocv.NewCLAHEWithParams(o.cfg.ClaheClipLimit, image.Pt(o.cfg.ClaheTiles, o.cfg.ClaheTiles))
	defer clahe.Close()

	eq := gocv.NewMat()
	defer eq.Close()
	clahe.Apply(src, &eq)

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.BilateralFilter(eq, &dst, o.cfg.BilateralDiameter, o.cfg.SigmaColor, o.cfg.SigmaSpace)

	out, err := dst.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert mat: %w", err)
	}
	gray, ok := out.(*image.Gray)
	if !ok {
		return nil, fmt.Errorf("unexpected mat image type %T", out)
	}
	return gray, nil
}
