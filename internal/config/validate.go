package config

import (
	"fmt"
	"strings"

	fserrors "github.com/ironsheep/formscan/internal/errors"
)

// ValidationError collects every problem found in a configuration.
type ValidationError struct {
	Errors []string
}

func (ve *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(ve.Errors, "; ")
}

func (ve *ValidationError) ErrorCategory() fserrors.ErrorCategory {
	return fserrors.CategoryConfiguration
}

func (ve *ValidationError) add(format string, args ...any) {
	ve.Errors = append(ve.Errors, fmt.Sprintf(format, args...))
}

func (e *FingerprintMismatchError) ErrorCategory() fserrors.ErrorCategory {
	return fserrors.CategoryConfiguration
}

// ValidateSettings checks the full settings tree.
func ValidateSettings(s *Settings) error {
	ve := &ValidationError{}
	validatePipeline(&s.Pipeline, ve)

	if s.Session.Workers < 1 {
		ve.add("session.workers must be >= 1, got %d", s.Session.Workers)
	}
	if s.Classifier.Threads < 1 {
		ve.add("classifier.threads must be >= 1, got %d", s.Classifier.Threads)
	}
	if s.Pipeline.Detection.Strategy == StrategyOracle && s.Oracle.Endpoint == "" {
		ve.add("oracle.endpoint is required when pipeline.detection.strategy is %q", StrategyOracle)
	}
	if s.Oracle.RequestsPerMinute <= 0 {
		ve.add("oracle.requests_per_minute must be > 0")
	}
	if s.OCR.HeaderFraction <= 0 || s.OCR.HeaderFraction > 0.5 {
		ve.add("ocr.header_fraction must be in (0, 0.5], got %g", s.OCR.HeaderFraction)
	}
	if s.Quality.MinInkFraction < 0 || s.Quality.MinInkFraction >= 1 {
		ve.add("quality.min_ink_fraction must be in [0, 1), got %g", s.Quality.MinInkFraction)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// Validate checks a pipeline on its own, e.g. one read from a manifest.
func (p *Pipeline) Validate() error {
	ve := &ValidationError{}
	validatePipeline(p, ve)
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validatePipeline(p *Pipeline, ve *ValidationError) {
	pre := p.Preprocess
	switch pre.Backend {
	case BackendNative, BackendOpenCV:
	default:
		ve.add("pipeline.preprocess.backend must be %q or %q, got %q", BackendNative, BackendOpenCV, pre.Backend)
	}
	if pre.ClaheClipLimit <= 0 {
		ve.add("pipeline.preprocess.clahe_clip_limit must be > 0")
	}
	if pre.ClaheTiles < 1 {
		ve.add("pipeline.preprocess.clahe_tiles must be >= 1")
	}
	if pre.BilateralDiameter < 1 || pre.BilateralDiameter%2 == 0 {
		ve.add("pipeline.preprocess.bilateral_diameter must be a positive odd number, got %d", pre.BilateralDiameter)
	}
	if pre.SigmaColor <= 0 || pre.SigmaSpace <= 0 {
		ve.add("pipeline.preprocess sigma values must be > 0")
	}

	d := p.Detection
	switch d.Strategy {
	case StrategyGeometric, StrategyOracle:
	default:
		ve.add("pipeline.detection.strategy must be %q or %q, got %q", StrategyGeometric, StrategyOracle, d.Strategy)
	}
	if d.CannyLow < 0 || d.CannyHigh > 255 || d.CannyLow >= d.CannyHigh {
		ve.add("pipeline.detection canny thresholds must satisfy 0 <= low < high <= 255")
	}
	if d.AngleTolerance <= 0 || d.AngleTolerance >= 45 {
		ve.add("pipeline.detection.angle_tolerance must be in (0, 45)")
	}
	if d.HorizontalBandMin < 0 || d.HorizontalBandMax > 1 || d.HorizontalBandMin >= d.HorizontalBandMax {
		ve.add("pipeline.detection horizontal band must satisfy 0 <= min < max <= 1")
	}
	if !inUnit(d.DefaultCenterX) || !inUnit(d.DefaultCenterY) {
		ve.add("pipeline.detection default center must lie inside (0, 1)")
	}
	if d.Gap < 0 {
		ve.add("pipeline.detection.gap must be >= 0")
	}
	if d.MinBoundaryFraction < 0 || d.MinBoundaryFraction >= 0.5 {
		ve.add("pipeline.detection.min_boundary_fraction must be in [0, 0.5)")
	}

	m := p.Margins
	margins := []struct {
		name  string
		value float64
	}{{"top", m.Top}, {"bottom", m.Bottom}, {"left", m.Left}, {"right", m.Right}}
	for _, mg := range margins {
		if mg.value < 0 || mg.value >= 0.5 {
			ve.add("pipeline.margins.%s must be in [0, 0.5), got %g", mg.name, mg.value)
		}
	}

	r := p.Regions
	if len(r.Attributes) == 0 {
		ve.add("pipeline.regions.attributes must not be empty")
	}
	seen := make(map[string]bool, len(r.Attributes))
	for _, a := range r.Attributes {
		if a == "" || seen[a] {
			ve.add("pipeline.regions.attributes must be unique non-empty names")
			break
		}
		seen[a] = true
	}
	if r.TargetWidth < 1 || r.TargetHeight < 1 {
		ve.add("pipeline.regions target size must be positive")
	}
	if r.PaddingX < 0 || r.PaddingY < 0 {
		ve.add("pipeline.regions padding must be >= 0")
	}

	a := p.Augmentation
	for _, b := range a.Brightness {
		if b <= 0 {
			ve.add("pipeline.augmentation.brightness factors must be > 0")
			break
		}
	}
	if a.NoiseSigma < 0 || a.NoiseSigma > 1 {
		ve.add("pipeline.augmentation.noise_sigma must be in [0, 1]")
	}
	tags := make(map[string]bool)
	for _, tag := range a.Tags() {
		if tags[tag] {
			ve.add("pipeline.augmentation variants must have distinct tags, %q repeats", tag)
			continue
		}
		tags[tag] = true
	}
}

func inUnit(v float64) bool { return v > 0 && v < 1 }
