// Package partition slices a sample quadrant into its attribute regions.
//
// Training and inference both call Partitioner.Partition, so a region's
// pixels depend only on the processed image, the quadrant and
// config.RegionsConfig.
package partition

import (
	"fmt"
	"image"
	"math"

	"github.com/ironsheep/formscan/internal/boundary"
	"github.com/ironsheep/formscan/internal/config"
	"github.com/ironsheep/formscan/internal/errors"
	"github.com/ironsheep/formscan/internal/form"
	"github.com/ironsheep/formscan/internal/imaging"
)

// Region is one attribute of one sample.
type Region struct {
	SampleID  form.SampleID
	Attribute form.Attribute

	// Band is the unpadded slice of the quadrant.
	Band image.Rectangle

	// Rect is Band after padding and clamping to the image.
	Rect image.Rectangle

	// Crop holds the pixels of Rect before resizing.
	Crop *image.Gray

	// Image is Crop resized to the target resolution.
	Image *image.Gray
}

// Ref returns the region's reference on the named form.
func (r Region) Ref(formName string) form.RegionRef {
	return form.RegionRef{Form: formName, Sample: r.SampleID, Attribute: r.Attribute}
}

// EmptyRegionWarning reports an attribute whose padded rectangle has no area
// after clamping to the image. The attribute is skipped.
type EmptyRegionWarning struct {
	SampleID  form.SampleID
	Attribute form.Attribute
	Rect      image.Rectangle
}

func (w *EmptyRegionWarning) Error() string {
	return fmt.Sprintf("empty region for sample %d %s: %v", w.SampleID, w.Attribute.Name, w.Rect)
}

func (w *EmptyRegionWarning) ErrorCategory() errors.ErrorCategory { return errors.CategoryEmptyRegion }

// Partitioner divides quadrants into attribute regions.
type Partitioner struct {
	cfg   config.RegionsConfig
	attrs []form.Attribute
}

// New returns a Partitioner for cfg.
func New(cfg config.RegionsConfig) *Partitioner {
	return &Partitioner{cfg: cfg, attrs: form.Attributes(cfg.Attributes)}
}

// Attributes returns the attributes in top-to-bottom order.
func (p *Partitioner) Attributes() []form.Attribute { return p.attrs }

// Bands splits the quadrant's height into n consecutive bands, top to
// bottom. Band i spans [y + round(i*H/n), y + round((i+1)*H/n)), so the
// heights sum to H exactly.
func Bands(q boundary.Quadrant, n int) []image.Rectangle {
	out := make([]image.Rectangle, n)
	h := q.Height()
	for i := 0; i < n; i++ {
		y0 := q.YStart + roundDiv(i*h, n)
		y1 := q.YStart + roundDiv((i+1)*h, n)
		out[i] = image.Rectangle{Min: image.Pt(q.XStart, y0), Max: image.Pt(q.XEnd, y1)}
	}
	return out
}

// Partition crops and resizes every attribute band of q from img.
//
// Each band is padded by PaddingX of the quadrant width and PaddingY of the
// band height on both sides, then clamped to the image. Bands left empty by
// clamping yield an EmptyRegionWarning instead of a Region; their siblings
// are still returned.
func (p *Partitioner) Partition(q boundary.Quadrant, img *image.Gray) ([]Region, []*EmptyRegionWarning) {
	bounds := img.Bounds()
	padX := round(float64(q.Width()) * p.cfg.PaddingX)

	regions := make([]Region, 0, len(p.attrs))
	var warnings []*EmptyRegionWarning
	for i, band := range Bands(q, len(p.attrs)) {
		padY := round(float64(band.Dy()) * p.cfg.PaddingY)
		rect := image.Rectangle{
			Min: image.Pt(band.Min.X-padX, band.Min.Y-padY),
			Max: image.Pt(band.Max.X+padX, band.Max.Y+padY),
		}.Intersect(bounds)

		if band.Empty() || rect.Empty() {
			warnings = append(warnings, &EmptyRegionWarning{SampleID: q.SampleID, Attribute: p.attrs[i], Rect: rect})
			continue
		}

		crop, err := imaging.CropGray(img, rect)
		if err != nil {
			warnings = append(warnings, &EmptyRegionWarning{SampleID: q.SampleID, Attribute: p.attrs[i], Rect: rect})
			continue
		}
		regions = append(regions, Region{
			SampleID:  q.SampleID,
			Attribute: p.attrs[i],
			Band:      band,
			Rect:      rect,
			Crop:      crop,
			Image:     imaging.ResizeGray(crop, p.cfg.TargetWidth, p.cfg.TargetHeight),
		})
	}
	return regions, warnings
}

// PartitionSet partitions every quadrant of s in sample order.
func (p *Partitioner) PartitionSet(s *boundary.Set, img *image.Gray) ([]Region, []*EmptyRegionWarning) {
	var regions []Region
	var warnings []*EmptyRegionWarning
	for _, q := range s.Quadrants {
		r, w := p.Partition(q, img)
		regions = append(regions, r...)
		warnings = append(warnings, w...)
	}
	return regions, warnings
}

// Overlay describes s and its bands for imaging.Overlay.
func (p *Partitioner) Overlay(s *boundary.Set) []imaging.OverlayBox {
	boxes := make([]imaging.OverlayBox, 0, len(s.Quadrants))
	for _, q := range s.Quadrants {
		bands := Bands(q, len(p.attrs))
		var seps []int
		for _, b := range bands[min(1, len(bands)):] {
			seps = append(seps, b.Min.Y)
		}
		boxes = append(boxes, imaging.OverlayBox{
			Label: fmt.Sprintf("S%d", q.SampleID),
			Rect:  q.Rect(),
			Bands: seps,
		})
	}
	return boxes
}

func round(v float64) int { return int(math.Round(v)) }

// roundDiv returns round(a/b) for non-negative a and positive b.
func roundDiv(a, b int) int {
	return int(math.Round(float64(a) / float64(b)))
}
