package cli

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ironsheep/formscan/internal/boundary"
	"github.com/ironsheep/formscan/internal/classifier"
	"github.com/ironsheep/formscan/internal/classifier/tflite"
	"github.com/ironsheep/formscan/internal/config"
	"github.com/ironsheep/formscan/internal/datastore"
	"github.com/ironsheep/formscan/internal/logger"
	"github.com/ironsheep/formscan/internal/metrics"
	"github.com/ironsheep/formscan/internal/ocr"
	"github.com/ironsheep/formscan/internal/oracle"
	"github.com/ironsheep/formscan/internal/pipeline"
)

// newMetrics registers formscan and process collectors on a fresh registry.
func newMetrics() (*metrics.Metrics, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.New(reg)
}

// newExtractor builds the shared extraction pipeline. The oracle client is
// created only when the detection strategy asks for it.
func (app *App) newExtractor(m *metrics.Metrics) (*pipeline.Extractor, error) {
	s := app.Settings
	var orc boundary.Oracle
	if s.Pipeline.Detection.Strategy == config.StrategyOracle {
		client, err := oracle.New(s.Oracle, app.Log)
		if err != nil {
			return nil, err
		}
		orc = client
	}
	return pipeline.New(s.Pipeline, orc, m, app.Log)
}

// newClassifier loads the configured model or falls back to placeholder
// ratings.
func (app *App) newClassifier(m *metrics.Metrics) classifier.Classifier {
	s := app.Settings
	load := tflite.Loader(tflite.Options{
		ModelDir:      s.Classifier.ModelDir,
		Threads:       s.Classifier.Threads,
		AllowMismatch: s.Classifier.AllowMismatch,
	}, s.Pipeline, app.Log)
	cls := classifier.LoadOrPlaceholder(load, app.Log.Module("classifier"))
	m.SetClassifierLoaded(cls.Name() != classifier.Placeholder{}.Name())
	return cls
}

// newOCR returns the header reader, or nil when OCR is disabled or
// unavailable.
func (app *App) newOCR() ocr.Reader {
	if !app.Settings.OCR.Enabled {
		return nil
	}
	t, err := ocr.New(app.Settings.OCR)
	if err != nil {
		app.Log.Warn("header OCR disabled", logger.Error(err))
		return nil
	}
	app.Log.Debug("header OCR ready", logger.Any("ocr", t.Describe()))
	return t
}

// openDatastore opens the session index. It returns nil when the datastore
// is disabled.
func (app *App) openDatastore() (*datastore.Store, error) {
	if !app.Settings.Datastore.Enabled {
		return nil, nil
	}
	return datastore.Open(app.Settings.Datastore.Path, app.Log)
}
