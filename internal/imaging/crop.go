package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
)

// EncodedImage is a PNG payload for JSON responses.
type EncodedImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// ToGray returns img as *image.Gray with bounds starting at the origin. Color
// images are reduced with BT.601 luminance weights via imaging.Grayscale.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	src := img
	if _, ok := img.(*image.Gray); !ok {
		src = imaging.Grayscale(img)
	}
	b := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), src, b.Min, draw.Src)
	return out
}

// CropGray extracts rect from img. rect must lie inside img and be non-empty.
func CropGray(img *image.Gray, rect image.Rectangle) (*image.Gray, error) {
	if rect.Empty() {
		return nil, fmt.Errorf("empty crop region %v", rect)
	}
	if !rect.In(img.Bounds()) {
		return nil, fmt.Errorf("crop region %v outside image bounds %v", rect, img.Bounds())
	}
	return ToGray(imaging.Crop(img, rect)), nil
}

// ResizeGray scales img to exactly width x height with Catmull-Rom cubic
// interpolation.
func ResizeGray(img *image.Gray, width, height int) *image.Gray {
	if img.Bounds().Dx() == width && img.Bounds().Dy() == height {
		return img
	}
	return ToGray(imaging.Resize(img, width, height, imaging.CatmullRom))
}

// EncodePNG encodes img as a base64 PNG payload.
func EncodePNG(img image.Image) (*EncodedImage, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return &EncodedImage{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// PNGBytes encodes img as PNG.
func PNGBytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
