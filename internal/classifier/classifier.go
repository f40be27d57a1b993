// Package classifier defines the rating classifier port and its fallbacks.
//
// The model-backed implementation lives in the tflite subpackage so that
// packages depending only on this interface build without the TensorFlow
// Lite C library.
package classifier

import (
	"context"
	"fmt"
	"image"
	"path/filepath"

	"github.com/ironsheep/formscan/internal/config"
	"github.com/ironsheep/formscan/internal/errors"
	"github.com/ironsheep/formscan/internal/form"
	"github.com/ironsheep/formscan/internal/logger"
)

// ModelFile is the model's file name inside a model directory.
const ModelFile = "model.tflite"

// Reasons recorded on degraded predictions.
const (
	ReasonNoModel         = "no-model"
	ReasonUnavailable     = "classifier-unavailable"
	ReasonPredictionError = "prediction-error"
)

// Prediction is a classifier's answer for one region.
type Prediction struct {
	Rating form.Rating `json:"rating"`

	// Degraded marks placeholder or fallback ratings. They must never be
	// mistaken for model output.
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`

	// Scores holds the per-rating model outputs, index 0 for rating 1.
	Scores []float32 `json:"scores,omitempty"`
}

// Classifier predicts the circled rating in a region image at the pipeline's
// target resolution.
type Classifier interface {
	Name() string
	Predict(ctx context.Context, img *image.Gray) (Prediction, error)
}

// ErrUnavailable is wrapped by errors returned when no usable model can be
// loaded.
var ErrUnavailable = errors.NewStd("classifier unavailable")

// Unavailable wraps cause as an ErrUnavailable classifier error.
func Unavailable(cause error, modelDir string) error {
	return errors.New(fmt.Errorf("%w: %w", ErrUnavailable, cause)).
		Component("classifier").
		Category(errors.CategoryClassifier).
		Context("model_dir", modelDir).
		Build()
}

// PredictionError reports a failed inference on a loaded model.
type PredictionError struct {
	Err error
}

func (e *PredictionError) Error() string { return "prediction failed: " + e.Err.Error() }

func (e *PredictionError) Unwrap() error { return e.Err }

func (e *PredictionError) ErrorCategory() errors.ErrorCategory { return errors.CategoryClassifier }

// Placeholder stands in when no model is configured or the configured one
// cannot be loaded. Every prediction is the neutral rating, marked degraded
// with Reason, or ReasonNoModel when Reason is empty.
type Placeholder struct {
	Reason string
}

func (Placeholder) Name() string { return "placeholder" }

func (p Placeholder) Predict(ctx context.Context, _ *image.Gray) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	reason := p.Reason
	if reason == "" {
		reason = ReasonNoModel
	}
	return Prediction{Rating: form.NeutralRating, Degraded: true, Reason: reason}, nil
}

// Degrading turns inner's prediction errors into neutral, degraded
// predictions and logs each one.
type Degrading struct {
	inner Classifier
	log   logger.Logger
}

// NewDegrading wraps inner.
func NewDegrading(inner Classifier, log logger.Logger) *Degrading {
	return &Degrading{inner: inner, log: log.Module("classifier")}
}

func (d *Degrading) Name() string { return d.inner.Name() }

// Predict never returns an error other than context cancellation.
func (d *Degrading) Predict(ctx context.Context, img *image.Gray) (Prediction, error) {
	p, err := d.inner.Predict(ctx, img)
	if err == nil {
		return p, nil
	}
	if ctx.Err() != nil {
		return Prediction{}, ctx.Err()
	}
	d.log.Warn("prediction failed, using neutral rating",
		logger.String("classifier", d.inner.Name()),
		logger.Error(err))
	return Prediction{Rating: form.NeutralRating, Degraded: true, Reason: ReasonPredictionError}, nil
}

// Loader opens a model-backed classifier.
type Loader func() (Classifier, error)

// LoadOrPlaceholder runs load and falls back to Placeholder when it fails.
// A nil load means no model is configured. The result is always wrapped in
// Degrading.
func LoadOrPlaceholder(load Loader, log logger.Logger) Classifier {
	if load == nil {
		log.Info("no model configured, ratings will be placeholders")
		return NewDegrading(Placeholder{}, log)
	}
	c, err := load()
	if err != nil {
		log.Warn("classifier unavailable, ratings will be placeholders", logger.Error(err))
		return NewDegrading(Placeholder{Reason: ReasonUnavailable}, log)
	}
	return NewDegrading(c, log)
}

// ResolveModel checks a model directory and returns the model path.
//
// The directory must contain ModelFile and a pipeline manifest. A manifest
// whose fingerprint differs from p makes the model unavailable unless
// allowMismatch is set.
func ResolveModel(dir string, p config.Pipeline, allowMismatch bool, log logger.Logger) (string, error) {
	path := filepath.Join(dir, ModelFile)
	if _, err := config.CheckManifest(dir, p); err != nil {
		var mismatch *config.FingerprintMismatchError
		if !errors.As(err, &mismatch) || !allowMismatch {
			return "", Unavailable(err, dir)
		}
		log.Warn("model was trained with a different pipeline",
			logger.String("expected", mismatch.Expected),
			logger.String("found", mismatch.Found))
	}
	return path, nil
}

// Tensor converts img to a row-major float32 slice scaled to 0..1.
func Tensor(img *image.Gray) []float32 {
	b := img.Bounds()
	out := make([]float32, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			out = append(out, float32(row[x])/255)
		}
	}
	return out
}

// RatingFromScores returns argmax(scores)+1. Ties resolve to the lower
// rating.
func RatingFromScores(scores []float32) (form.Rating, error) {
	if len(scores) != int(form.MaxRating) {
		return form.Unrated, fmt.Errorf("expected %d scores, got %d", form.MaxRating, len(scores))
	}
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	return form.Rating(best + 1), nil
}
