// Package tflite runs the rating model with TensorFlow Lite.
//
// Building this package requires the TensorFlow Lite C library.
package tflite

import (
	"context"
	"fmt"
	"image"
	"os"
	"runtime"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"

	"github.com/ironsheep/formscan/internal/classifier"
	"github.com/ironsheep/formscan/internal/config"
	"github.com/ironsheep/formscan/internal/errors"
	"github.com/ironsheep/formscan/internal/logger"
)

// Classifier is a loaded model. Predict calls are serialized.
type Classifier struct {
	mu          sync.Mutex
	model       *tflite.Model
	interpreter *tflite.Interpreter
	width       int
	height      int
	log         logger.Logger
}

// Options configures Open.
type Options struct {
	ModelDir      string
	Threads       int
	AllowMismatch bool
}

// Loader returns a classifier.Loader for opts, or nil when no model directory
// is configured.
func Loader(opts Options, p config.Pipeline, log logger.Logger) classifier.Loader {
	if opts.ModelDir == "" {
		return nil
	}
	return func() (classifier.Classifier, error) {
		return Open(opts, p, log)
	}
}

// Open loads the model in opts.ModelDir after checking its pipeline manifest.
// Failures are ErrUnavailable classifier errors.
func Open(opts Options, p config.Pipeline, log logger.Logger) (*Classifier, error) {
	log = log.Module("classifier")
	start := time.Now()

	path, err := classifier.ResolveModel(opts.ModelDir, p, opts.AllowMismatch, log)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, classifier.Unavailable(err, opts.ModelDir)
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, classifier.Unavailable(fmt.Errorf("cannot load TensorFlow Lite model %s", path), opts.ModelDir)
	}

	threads := opts.Threads
	if threads <= 0 {
		threads = 1
	}
	threads = min(threads, runtime.NumCPU())

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, user_data any) {
		log.Error("TFLite error", logger.String("message", msg))
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, classifier.Unavailable(fmt.Errorf("cannot create interpreter"), opts.ModelDir)
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, classifier.Unavailable(fmt.Errorf("tensor allocation failed: %v", status), opts.ModelDir)
	}

	c := &Classifier{
		model:       model,
		interpreter: interpreter,
		width:       p.Regions.TargetWidth,
		height:      p.Regions.TargetHeight,
		log:         log,
	}

	input := interpreter.GetInputTensor(0)
	if input == nil {
		c.Close()
		return nil, classifier.Unavailable(fmt.Errorf("cannot get input tensor"), opts.ModelDir)
	}
	if want := c.width * c.height; len(input.Float32s()) != want {
		c.Close()
		return nil, classifier.Unavailable(
			fmt.Errorf("model expects %d inputs, pipeline produces %dx%d regions", len(input.Float32s()), c.width, c.height),
			opts.ModelDir)
	}

	log.Info("model loaded",
		logger.String("path", path),
		logger.Int("threads", threads),
		logger.Duration("elapsed", time.Since(start)))
	return c, nil
}

func (c *Classifier) Name() string { return "tflite" }

// Predict runs one region through the model. img must be at the pipeline's
// target resolution.
func (c *Classifier) Predict(ctx context.Context, img *image.Gray) (classifier.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return classifier.Prediction{}, err
	}
	b := img.Bounds()
	if b.Dx() != c.width || b.Dy() != c.height {
		return classifier.Prediction{}, &classifier.PredictionError{
			Err: fmt.Errorf("region is %dx%d, model expects %dx%d", b.Dx(), b.Dy(), c.width, c.height),
		}
	}
	sample := classifier.Tensor(img)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.interpreter == nil {
		return classifier.Prediction{}, &classifier.PredictionError{Err: errors.NewStd("classifier closed")}
	}

	input := c.interpreter.GetInputTensor(0)
	if input == nil {
		return classifier.Prediction{}, &classifier.PredictionError{Err: errors.NewStd("cannot get input tensor")}
	}
	copy(input.Float32s(), sample)

	if status := c.interpreter.Invoke(); status != tflite.OK {
		return classifier.Prediction{}, &classifier.PredictionError{Err: fmt.Errorf("tensor invoke failed: %v", status)}
	}

	scores := extractScores(c.interpreter.GetOutputTensor(0))
	rating, err := classifier.RatingFromScores(scores)
	if err != nil {
		return classifier.Prediction{}, &classifier.PredictionError{Err: err}
	}
	return classifier.Prediction{Rating: rating, Scores: scores}, nil
}

// Close releases the interpreter and then the model it was built from.
func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.interpreter != nil {
		c.interpreter.Delete()
		c.interpreter = nil
	}
	if c.model != nil {
		c.model.Delete()
		c.model = nil
	}
}

func extractScores(tensor *tflite.Tensor) []float32 {
	if tensor == nil {
		return nil
	}
	n := tensor.Dim(tensor.NumDims() - 1)
	scores := make([]float32, n)
	copy(scores, tensor.Float32s())
	return scores
}
