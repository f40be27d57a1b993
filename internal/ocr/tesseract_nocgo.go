//go:build !cgo

package ocr

import (
	"context"
	"image"

	"github.com/ironsheep/formscan/internal/config"
)

// Tesseract is unavailable in builds without cgo.
type Tesseract struct{}

// New always fails with ErrUnavailable.
func New(config.OCRSettings) (*Tesseract, error) {
	return nil, ocrError(ErrUnavailable, "init")
}

func (t *Tesseract) ReadHeader(context.Context, image.Image) (*Header, error) {
	return nil, ocrError(ErrUnavailable, "text")
}

func (t *Tesseract) Describe() Info {
	return Info{Error: "built without cgo"}
}
