package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// PipelineVersion is bumped whenever a default that changes region pixels
// changes.
const PipelineVersion = "1"

// ManifestName is the file stamped next to training stores and models.
const ManifestName = "pipeline.yaml"

// Detection strategies.
const (
	StrategyGeometric = "geometric"
	StrategyOracle    = "oracle"
)

// Preprocessing backends.
const (
	BackendNative = "native"
	BackendOpenCV = "opencv"
)

// Pipeline holds every parameter that influences the pixels of an attribute
// region. Training and inference must run with identical values.
type Pipeline struct {
	Version      string             `yaml:"version" mapstructure:"version" json:"version"`
	Preprocess   PreprocessConfig   `yaml:"preprocess" mapstructure:"preprocess" json:"preprocess"`
	Detection    DetectionConfig    `yaml:"detection" mapstructure:"detection" json:"detection"`
	Margins      Margins            `yaml:"margins" mapstructure:"margins" json:"margins"`
	Regions      RegionsConfig      `yaml:"regions" mapstructure:"regions" json:"regions"`
	Augmentation AugmentationConfig `yaml:"augmentation" mapstructure:"augmentation" json:"augmentation"`
}

// PreprocessConfig configures grayscale, CLAHE and bilateral filtering.
type PreprocessConfig struct {
	Backend           string  `yaml:"backend" mapstructure:"backend" json:"backend"`
	ClaheClipLimit    float64 `yaml:"clahe_clip_limit" mapstructure:"clahe_clip_limit" json:"clahe_clip_limit"`
	ClaheTiles        int     `yaml:"clahe_tiles" mapstructure:"clahe_tiles" json:"clahe_tiles"`
	BilateralDiameter int     `yaml:"bilateral_diameter" mapstructure:"bilateral_diameter" json:"bilateral_diameter"`
	SigmaColor        float64 `yaml:"sigma_color" mapstructure:"sigma_color" json:"sigma_color"`
	SigmaSpace        float64 `yaml:"sigma_space" mapstructure:"sigma_space" json:"sigma_space"`
}

// DetectionConfig configures the boundary detector.
type DetectionConfig struct {
	Strategy            string  `yaml:"strategy" mapstructure:"strategy" json:"strategy"`
	CannyLow            int     `yaml:"canny_low" mapstructure:"canny_low" json:"canny_low"`
	CannyHigh           int     `yaml:"canny_high" mapstructure:"canny_high" json:"canny_high"`
	AngleTolerance      float64 `yaml:"angle_tolerance" mapstructure:"angle_tolerance" json:"angle_tolerance"`
	MinLineFraction     float64 `yaml:"min_line_fraction" mapstructure:"min_line_fraction" json:"min_line_fraction"`
	HorizontalBandMin   float64 `yaml:"horizontal_band_min" mapstructure:"horizontal_band_min" json:"horizontal_band_min"`
	HorizontalBandMax   float64 `yaml:"horizontal_band_max" mapstructure:"horizontal_band_max" json:"horizontal_band_max"`
	DefaultCenterX      float64 `yaml:"default_center_x" mapstructure:"default_center_x" json:"default_center_x"`
	DefaultCenterY      float64 `yaml:"default_center_y" mapstructure:"default_center_y" json:"default_center_y"`
	Gap                 int     `yaml:"gap" mapstructure:"gap" json:"gap"`
	MinBoundaryFraction float64 `yaml:"min_boundary_fraction" mapstructure:"min_boundary_fraction" json:"min_boundary_fraction"`
}

// Margins are fractions of the image trimmed from each side before the
// quadrants are laid out.
type Margins struct {
	Top    float64 `yaml:"top" mapstructure:"top" json:"top"`
	Bottom float64 `yaml:"bottom" mapstructure:"bottom" json:"bottom"`
	Left   float64 `yaml:"left" mapstructure:"left" json:"left"`
	Right  float64 `yaml:"right" mapstructure:"right" json:"right"`
}

// RegionsConfig configures partitioning of a quadrant into attribute bands.
type RegionsConfig struct {
	Attributes   []string `yaml:"attributes" mapstructure:"attributes" json:"attributes"`
	TargetWidth  int      `yaml:"target_width" mapstructure:"target_width" json:"target_width"`
	TargetHeight int      `yaml:"target_height" mapstructure:"target_height" json:"target_height"`
	PaddingX     float64  `yaml:"padding_x" mapstructure:"padding_x" json:"padding_x"`
	PaddingY     float64  `yaml:"padding_y" mapstructure:"padding_y" json:"padding_y"`
}

// AugmentationConfig configures the variant battery.
type AugmentationConfig struct {
	Rotations        []float64 `yaml:"rotations" mapstructure:"rotations" json:"rotations"`
	Brightness       []float64 `yaml:"brightness" mapstructure:"brightness" json:"brightness"`
	NoiseSigma       float64   `yaml:"noise_sigma" mapstructure:"noise_sigma" json:"noise_sigma"`
	Combined         bool      `yaml:"combined" mapstructure:"combined" json:"combined"`
	CombinedRotation float64   `yaml:"combined_rotation" mapstructure:"combined_rotation" json:"combined_rotation"`
}

// TagOriginal marks the unmodified region in the variant battery.
const TagOriginal = "orig"

// Tags lists the variant tags of the battery in generation order. Tags are
// part of example file names, so two variants sharing a tag would collide.
func (a AugmentationConfig) Tags() []string {
	tags := []string{TagOriginal}
	for _, deg := range a.Rotations {
		tags = append(tags, RotationTag(deg))
	}
	for _, f := range a.Brightness {
		tags = append(tags, BrightnessTag(f))
	}
	if a.NoiseSigma > 0 {
		tags = append(tags, NoiseTag(a.NoiseSigma))
		if a.Combined {
			tags = append(tags, CombinedTag(a.CombinedRotation, a.NoiseSigma))
		}
	}
	return tags
}

// RotationTag formats degrees as rot_p15 (+1.5) or rot_m15 (-1.5).
func RotationTag(deg float64) string {
	sign := "p"
	if deg < 0 {
		sign = "m"
	}
	return fmt.Sprintf("rot_%s%02d", sign, int(math.Round(math.Abs(deg)*10)))
}

// BrightnessTag formats a factor as a percentage, e.g. bright_090.
func BrightnessTag(factor float64) string {
	return fmt.Sprintf("bright_%03d", int(math.Round(factor*100)))
}

// NoiseTag formats sigma as a percentage of full scale, e.g. noise_02.
func NoiseTag(sigma float64) string {
	return fmt.Sprintf("noise_%02d", int(math.Round(sigma*100)))
}

// CombinedTag names the rotated-and-noised variant.
func CombinedTag(deg, sigma float64) string {
	return RotationTag(deg) + "_" + NoiseTag(sigma)
}

// DefaultPipeline returns the reference pipeline.
func DefaultPipeline() Pipeline {
	return Pipeline{
		Version: PipelineVersion,
		Preprocess: PreprocessConfig{
			Backend:           BackendNative,
			ClaheClipLimit:    2.0,
			ClaheTiles:        8,
			BilateralDiameter: 5,
			SigmaColor:        50,
			SigmaSpace:        50,
		},
		Detection: DetectionConfig{
			Strategy:            StrategyGeometric,
			CannyLow:            50,
			CannyHigh:           150,
			AngleTolerance:      15,
			MinLineFraction:     0.25,
			HorizontalBandMin:   0.40,
			HorizontalBandMax:   0.80,
			DefaultCenterX:      0.5,
			DefaultCenterY:      0.6,
			Gap:                 10,
			MinBoundaryFraction: 0.15,
		},
		Margins: Margins{Top: 0.12, Bottom: 0.05, Left: 0.03, Right: 0.03},
		Regions: RegionsConfig{
			Attributes:   []string{"appearance", "aroma", "flavor", "texture", "overall"},
			TargetWidth:  256,
			TargetHeight: 64,
			PaddingX:     0.02,
			PaddingY:     0.05,
		},
		Augmentation: AugmentationConfig{
			Rotations:        []float64{1.5, -1.5},
			Brightness:       []float64{1.1, 0.9},
			NoiseSigma:       0.02,
			Combined:         true,
			CombinedRotation: 1.0,
		},
	}
}

// Fingerprint is the SHA-256 of the canonical YAML encoding of p.
func (p Pipeline) Fingerprint() string {
	data, err := yaml.Marshal(p)
	if err != nil {
		// Pipeline contains only scalars and slices; Marshal cannot fail.
		panic(fmt.Sprintf("config: marshal pipeline: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ShortFingerprint returns the first 12 hex digits of the fingerprint.
func (p Pipeline) ShortFingerprint() string {
	return p.Fingerprint()[:12]
}

// Manifest is the on-disk record of the pipeline a store or model was built
// with.
type Manifest struct {
	Fingerprint string    `yaml:"fingerprint"`
	CreatedAt   time.Time `yaml:"created_at"`
	Pipeline    Pipeline  `yaml:"pipeline"`
}

// FingerprintMismatchError reports a manifest built with another pipeline.
type FingerprintMismatchError struct {
	Path     string
	Expected string
	Found    string
}

func (e *FingerprintMismatchError) Error() string {
	return fmt.Sprintf("pipeline fingerprint mismatch in %s: active %s, recorded %s",
		e.Path, short(e.Expected), short(e.Found))
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

// WriteManifest atomically writes p's manifest into dir.
func WriteManifest(dir string, p Pipeline) error {
	m := Manifest{Fingerprint: p.Fingerprint(), CreatedAt: time.Now().UTC(), Pipeline: p}
	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".pipeline-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, ManifestName)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// ReadManifest reads the manifest in dir. A missing manifest returns an error
// satisfying errors.Is(err, fs.ErrNotExist).
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &m, nil
}

// CheckManifest compares the manifest in dir against p.
func CheckManifest(dir string, p Pipeline) (*Manifest, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	if fp := p.Fingerprint(); m.Fingerprint != fp {
		return m, &FingerprintMismatchError{
			Path:     filepath.Join(dir, ManifestName),
			Expected: fp,
			Found:    m.Fingerprint,
		}
	}
	return m, nil
}
