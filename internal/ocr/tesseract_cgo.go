//go:build cgo

package ocr

import (
	"context"
	"fmt"
	"image"

	"github.com/otiai10/gosseract/v2"

	"github.com/ironsheep/formscan/internal/config"
	fsimaging "github.com/ironsheep/formscan/internal/imaging"
)

// Tesseract reads headers with a fresh gosseract client per call, so it is
// safe for concurrent use.
type Tesseract struct {
	language    string
	tessdataDir string
	fraction    float64
}

// New checks that Tesseract and the configured language are installed.
func New(cfg config.OCRSettings) (*Tesseract, error) {
	t := &Tesseract{language: cfg.Language, tessdataDir: cfg.TessdataDir, fraction: cfg.HeaderFraction}
	if t.language == "" {
		t.language = "eng"
	}
	langs, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return nil, ocrError(fmt.Errorf("%w: %w", ErrUnavailable, err), "languages")
	}
	if t.tessdataDir == "" && !contains(langs, t.language) {
		return nil, ocrError(fmt.Errorf("%w: language %q not installed", ErrUnavailable, t.language), "languages")
	}
	return t, nil
}

// ReadHeader recognizes the header strip of img.
func (t *Tesseract) ReadHeader(ctx context.Context, img image.Image) (*Header, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rect := HeaderRect(img.Bounds(), t.fraction)
	if rect.Empty() {
		return &Header{}, nil
	}
	gray := fsimaging.ToGray(img)
	crop, err := fsimaging.CropGray(gray, rect.Sub(img.Bounds().Min))
	if err != nil {
		return nil, ocrError(err, "crop")
	}
	data, err := fsimaging.PNGBytes(crop)
	if err != nil {
		return nil, ocrError(err, "encode")
	}

	client := gosseract.NewClient()
	defer client.Close()

	if t.tessdataDir != "" {
		if err := client.SetTessdataPrefix(t.tessdataDir); err != nil {
			return nil, ocrError(fmt.Errorf("failed to set tessdata path: %w", err), "init")
		}
	}
	if err := client.SetLanguage(t.language); err != nil {
		return nil, ocrError(fmt.Errorf("failed to set language: %w", err), "init")
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, ocrError(fmt.Errorf("failed to set image: %w", err), "image")
	}

	text, err := client.Text()
	if err != nil {
		return nil, ocrError(fmt.Errorf("OCR failed: %w", err), "text")
	}

	// Word boxes are optional; some Tesseract builds fail here.
	var words []Word
	if boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD); err == nil {
		words = make([]Word, 0, len(boxes))
		for _, box := range boxes {
			words = append(words, Word{
				Text:       box.Word,
				Confidence: box.Confidence / 100.0,
				Bounds:     box.Box,
			})
		}
	}
	return newHeader(text, words, rect.Min), nil
}

// Describe reports the Tesseract version and language.
func (t *Tesseract) Describe() Info {
	client := gosseract.NewClient()
	defer client.Close()
	return Info{Available: true, Version: client.Version(), Language: t.language}
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
