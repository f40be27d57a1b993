package classifier

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/formscan/internal/config"
	"github.com/ironsheep/formscan/internal/errors"
	"github.com/ironsheep/formscan/internal/form"
	"github.com/ironsheep/formscan/internal/logger"
)

type failingClassifier struct{ calls int }

func (f *failingClassifier) Name() string { return "failing" }

func (f *failingClassifier) Predict(context.Context, *image.Gray) (Prediction, error) {
	f.calls++
	return Prediction{}, &PredictionError{Err: errors.NewStd("tensor invoke failed")}
}

type fixedClassifier struct{ rating form.Rating }

func (f fixedClassifier) Name() string { return "fixed" }

func (f fixedClassifier) Predict(context.Context, *image.Gray) (Prediction, error) {
	return Prediction{Rating: f.rating}, nil
}

func region() *image.Gray { return image.NewGray(image.Rect(0, 0, 256, 64)) }

func TestPlaceholder(t *testing.T) {
	p, err := Placeholder{}.Predict(context.Background(), region())
	require.NoError(t, err)
	assert.Equal(t, form.NeutralRating, p.Rating)
	assert.True(t, p.Degraded)
	assert.Equal(t, ReasonNoModel, p.Reason)
}

func TestPlaceholder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Placeholder{}.Predict(ctx, region())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDegrading_NeutralOnError(t *testing.T) {
	inner := &failingClassifier{}
	d := NewDegrading(inner, logger.NewDiscard())

	for range 3 {
		p, err := d.Predict(context.Background(), region())
		require.NoError(t, err)
		assert.Equal(t, form.NeutralRating, p.Rating)
		assert.True(t, p.Degraded)
		assert.Equal(t, ReasonPredictionError, p.Reason)
	}
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, "failing", d.Name())
}

func TestDegrading_PassesThrough(t *testing.T) {
	d := NewDegrading(fixedClassifier{rating: 7}, logger.NewDiscard())
	p, err := d.Predict(context.Background(), region())
	require.NoError(t, err)
	assert.Equal(t, form.Rating(7), p.Rating)
	assert.False(t, p.Degraded)
}

func TestLoadOrPlaceholder(t *testing.T) {
	log := logger.NewDiscard()

	c := LoadOrPlaceholder(nil, log)
	p, err := c.Predict(context.Background(), region())
	require.NoError(t, err)
	assert.True(t, p.Degraded)
	assert.Equal(t, ReasonNoModel, p.Reason)

	c = LoadOrPlaceholder(func() (Classifier, error) {
		return nil, Unavailable(errors.NewStd("missing"), "/models")
	}, log)
	assert.Equal(t, "placeholder", c.Name())
	p, err = c.Predict(context.Background(), region())
	require.NoError(t, err)
	assert.True(t, p.Degraded)
	assert.Equal(t, form.NeutralRating, p.Rating)
	assert.Equal(t, ReasonUnavailable, p.Reason)

	c = LoadOrPlaceholder(func() (Classifier, error) { return fixedClassifier{rating: 2}, nil }, log)
	p, err = c.Predict(context.Background(), region())
	require.NoError(t, err)
	assert.Equal(t, form.Rating(2), p.Rating)
}

func TestPredictionError_Category(t *testing.T) {
	err := &PredictionError{Err: errors.NewStd("boom")}
	assert.True(t, errors.IsCategory(err, errors.CategoryClassifier))
	assert.Contains(t, err.Error(), "boom")
}

func TestResolveModel(t *testing.T) {
	log := logger.NewDiscard()
	p := config.DefaultPipeline()

	t.Run("missing manifest", func(t *testing.T) {
		_, err := ResolveModel(t.TempDir(), p, false, log)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.True(t, errors.IsCategory(err, errors.CategoryClassifier))
	})

	t.Run("matching manifest", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, config.WriteManifest(dir, p))
		path, err := ResolveModel(dir, p, false, log)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, ModelFile), path)
	})

	t.Run("mismatch refused", func(t *testing.T) {
		dir := t.TempDir()
		other := config.DefaultPipeline()
		other.Regions.TargetWidth = 128
		require.NoError(t, config.WriteManifest(dir, other))

		_, err := ResolveModel(dir, p, false, log)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnavailable)
		var mismatch *config.FingerprintMismatchError
		assert.ErrorAs(t, err, &mismatch)
	})

	t.Run("mismatch allowed", func(t *testing.T) {
		dir := t.TempDir()
		other := config.DefaultPipeline()
		other.Version = "0.9"
		require.NoError(t, config.WriteManifest(dir, other))
		require.NoError(t, os.WriteFile(filepath.Join(dir, ModelFile), []byte("x"), 0o644))

		_, err := ResolveModel(dir, p, true, log)
		assert.NoError(t, err)
	})
}

func TestTensor(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	copy(img.Pix, []uint8{0, 255, 51, 102, 153, 204})
	got := Tensor(img)
	require.Len(t, got, 6)
	assert.InDelta(t, 0.0, got[0], 1e-6)
	assert.InDelta(t, 1.0, got[1], 1e-6)
	assert.InDelta(t, 0.2, got[2], 1e-6)
	assert.InDelta(t, 0.8, got[5], 1e-6)

	sub := img.SubImage(image.Rect(1, 1, 3, 2)).(*image.Gray)
	got = Tensor(sub)
	require.Len(t, got, 2)
	assert.InDelta(t, 0.6, got[0], 1e-6)
}

func TestRatingFromScores(t *testing.T) {
	r, err := RatingFromScores([]float32{0.1, 0, 0, 0, 0, 0, 0.7, 0.2, 0})
	require.NoError(t, err)
	assert.Equal(t, form.Rating(7), r)

	r, err = RatingFromScores([]float32{0.5, 0.5, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, form.Rating(1), r, "ties go to the lower rating")

	_, err = RatingFromScores([]float32{1, 2})
	assert.Error(t, err)
}
