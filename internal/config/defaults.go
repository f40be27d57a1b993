package config

import (
	"runtime"
	"time"

	"github.com/spf13/viper"
)

func setDefaults(v *viper.Viper) {
	p := DefaultPipeline()

	v.SetDefault("pipeline.version", p.Version)

	v.SetDefault("pipeline.preprocess.backend", p.Preprocess.Backend)
	v.SetDefault("pipeline.preprocess.clahe_clip_limit", p.Preprocess.ClaheClipLimit)
	v.SetDefault("pipeline.preprocess.clahe_tiles", p.Preprocess.ClaheTiles)
	v.SetDefault("pipeline.preprocess.bilateral_diameter", p.Preprocess.BilateralDiameter)
	v.SetDefault("pipeline.preprocess.sigma_color", p.Preprocess.SigmaColor)
	v.SetDefault("pipeline.preprocess.sigma_space", p.Preprocess.SigmaSpace)

	v.SetDefault("pipeline.detection.strategy", p.Detection.Strategy)
	v.SetDefault("pipeline.detection.canny_low", p.Detection.CannyLow)
	v.SetDefault("pipeline.detection.canny_high", p.Detection.CannyHigh)
	v.SetDefault("pipeline.detection.angle_tolerance", p.Detection.AngleTolerance)
	v.SetDefault("pipeline.detection.min_line_fraction", p.Detection.MinLineFraction)
	v.SetDefault("pipeline.detection.horizontal_band_min", p.Detection.HorizontalBandMin)
	v.SetDefault("pipeline.detection.horizontal_band_max", p.Detection.HorizontalBandMax)
	v.SetDefault("pipeline.detection.default_center_x", p.Detection.DefaultCenterX)
	v.SetDefault("pipeline.detection.default_center_y", p.Detection.DefaultCenterY)
	v.SetDefault("pipeline.detection.gap", p.Detection.Gap)
	v.SetDefault("pipeline.detection.min_boundary_fraction", p.Detection.MinBoundaryFraction)

	v.SetDefault("pipeline.margins.top", p.Margins.Top)
	v.SetDefault("pipeline.margins.bottom", p.Margins.Bottom)
	v.SetDefault("pipeline.margins.left", p.Margins.Left)
	v.SetDefault("pipeline.margins.right", p.Margins.Right)

	v.SetDefault("pipeline.regions.attributes", p.Regions.Attributes)
	v.SetDefault("pipeline.regions.target_width", p.Regions.TargetWidth)
	v.SetDefault("pipeline.regions.target_height", p.Regions.TargetHeight)
	v.SetDefault("pipeline.regions.padding_x", p.Regions.PaddingX)
	v.SetDefault("pipeline.regions.padding_y", p.Regions.PaddingY)

	v.SetDefault("pipeline.augmentation.rotations", p.Augmentation.Rotations)
	v.SetDefault("pipeline.augmentation.brightness", p.Augmentation.Brightness)
	v.SetDefault("pipeline.augmentation.noise_sigma", p.Augmentation.NoiseSigma)
	v.SetDefault("pipeline.augmentation.combined", p.Augmentation.Combined)
	v.SetDefault("pipeline.augmentation.combined_rotation", p.Augmentation.CombinedRotation)

	v.SetDefault("session.workers", min(runtime.NumCPU(), 4))
	v.SetDefault("session.log_dir", "logs")
	v.SetDefault("session.recursive", false)

	v.SetDefault("store.root", "training_data")

	v.SetDefault("classifier.model_dir", "")
	v.SetDefault("classifier.threads", 1)
	v.SetDefault("classifier.allow_mismatch", false)

	v.SetDefault("oracle.endpoint", "")
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.model", "")
	v.SetDefault("oracle.timeout", 60*time.Second)
	v.SetDefault("oracle.requests_per_minute", 30.0)
	v.SetDefault("oracle.cache_ttl", 24*time.Hour)

	v.SetDefault("datastore.enabled", true)
	v.SetDefault("datastore.path", "formscan.db")

	v.SetDefault("ocr.enabled", false)
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.tessdata_dir", "")
	v.SetDefault("ocr.header_fraction", 0.10)

	v.SetDefault("quality.skip_blank", false)
	v.SetDefault("quality.min_ink_fraction", 0.002)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	v.SetDefault("server.listen", "127.0.0.1:8080")
}
