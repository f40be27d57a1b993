//go:build !gocv

package preprocess

import (
	"github.com/ironsheep/formscan/internal/config"
	"github.com/ironsheep/formscan/internal/errors"
)

// ErrOpenCVUnavailable is returned when the opencv backend is selected in a
// build without the gocv tag.
var ErrOpenCVUnavailable = errors.NewStd("opencv backend not compiled in (rebuild with -tags gocv)")

func newOpenCVBackend(config.PreprocessConfig) (Backend, error) {
	return nil, errors.New(ErrOpenCVUnavailable).
		Component("preprocess").
		Category(errors.CategoryConfiguration).
		Build()
}
