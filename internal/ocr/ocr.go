package ocr

import (
	"context"
	"image"
	"math"
	"strings"

	"github.com/ironsheep/formscan/internal/errors"
)

// ErrUnavailable is returned by New when Tesseract cannot be used.
var ErrUnavailable = errors.NewStd("ocr unavailable")

// Word is one recognized word and its location in the form image.
type Word struct {
	Text       string          `json:"text"`
	Confidence float64         `json:"confidence"`
	Bounds     image.Rectangle `json:"bounds"`
}

// Header is the recognized header text of one form.
type Header struct {
	Text string `json:"text"`

	// Confidence is the mean word confidence, 0-1.
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words,omitempty"`
}

// Reader extracts header text from a form image.
type Reader interface {
	ReadHeader(ctx context.Context, img image.Image) (*Header, error)
}

// Info describes the OCR backend.
type Info struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Language  string `json:"language,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HeaderRect is the top fraction of bounds.
func HeaderRect(bounds image.Rectangle, fraction float64) image.Rectangle {
	h := int(math.Round(float64(bounds.Dy()) * fraction))
	h = max(min(h, bounds.Dy()), 0)
	return image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Min.Y+h)
}

// newHeader assembles a Header from words, skipping empty ones and shifting
// their bounds by offset.
func newHeader(text string, words []Word, offset image.Point) *Header {
	h := &Header{Text: strings.TrimSpace(text)}
	var sum float64
	for _, w := range words {
		if strings.TrimSpace(w.Text) == "" {
			continue
		}
		w.Bounds = w.Bounds.Add(offset)
		h.Words = append(h.Words, w)
		sum += w.Confidence
	}
	if len(h.Words) > 0 {
		h.Confidence = sum / float64(len(h.Words))
	}
	return h
}

func ocrError(err error, op string) error {
	return errors.New(err).
		Component("ocr").
		Category(errors.CategoryOCR).
		Context("operation", op).
		Build()
}
