package httpserver

import (
	"context"
	"image"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ironsheep/formscan/internal/boundary"
	"github.com/ironsheep/formscan/internal/config"
	"github.com/ironsheep/formscan/internal/errors"
	"github.com/ironsheep/formscan/internal/form"
	"github.com/ironsheep/formscan/internal/imaging"
	"github.com/ironsheep/formscan/internal/logger"
)

// metricsMode labels HTTP predictions in the form and region counters.
const metricsMode = "http"

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status     string `json:"status"`
	Classifier string `json:"classifier"`
	Pipeline   string `json:"pipeline"`
}

// PipelineResponse is returned by GET /api/v1/pipeline.
type PipelineResponse struct {
	Version     string          `json:"version"`
	Fingerprint string          `json:"fingerprint"`
	Pipeline    config.Pipeline `json:"pipeline"`
}

// PredictResponse is returned by POST /api/v1/forms/predict.
type PredictResponse struct {
	Form        string         `json:"form"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Fingerprint string         `json:"pipeline_fingerprint"`
	Boundaries  *boundary.Set  `json:"boundaries"`
	Regions     []RegionRating `json:"regions"`
	Empty       []EmptyRegion  `json:"empty,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
}

// RegionRating is the predicted rating of one region.
type RegionRating struct {
	Sample    form.SampleID `json:"sample"`
	Attribute string        `json:"attribute"`
	Rect      [4]int        `json:"rect"`
	Rating    form.Rating   `json:"rating"`
	Degraded  bool          `json:"degraded"`
	Reason    string        `json:"reason,omitempty"`
}

// EmptyRegion is an attribute skipped because its crop had no area.
type EmptyRegion struct {
	Sample    form.SampleID `json:"sample"`
	Attribute string        `json:"attribute"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:     "ok",
		Classifier: s.classifier.Name(),
		Pipeline:   s.extractor.Config().ShortFingerprint(),
	})
}

func (s *Server) handlePipeline(c echo.Context) error {
	p := s.extractor.Config()
	return c.JSON(http.StatusOK, PipelineResponse{
		Version:     p.Version,
		Fingerprint: p.Fingerprint(),
		Pipeline:    p,
	})
}

func (s *Server) handlePredict(c echo.Context) error {
	start := time.Now()
	ctx := c.Request().Context()

	fh, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"image\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	raw, err := imaging.Decode(f, fh.Filename)
	if err != nil {
		s.metrics.RecordForm(metricsMode, "failed", time.Since(start))
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	ex, err := s.extractor.Extract(ctx, raw)
	if err != nil {
		s.metrics.RecordForm(metricsMode, "failed", time.Since(start))
		s.log.Warn("extraction failed", logger.String("form", fh.Filename), logger.Error(err))
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	s.metrics.RecordBoundary(string(ex.Boundaries.Source))

	resp := PredictResponse{
		Form:        fh.Filename,
		Width:       raw.Width,
		Height:      raw.Height,
		Fingerprint: s.extractor.Config().Fingerprint(),
		Boundaries:  ex.Boundaries,
		Regions:     make([]RegionRating, 0, len(ex.Regions)),
	}
	for _, w := range ex.Warnings {
		resp.Empty = append(resp.Empty, EmptyRegion{Sample: w.SampleID, Attribute: w.Attribute.Name})
		s.metrics.RecordRegion(metricsMode, "empty")
	}
	for _, r := range ex.Regions {
		rr := RegionRating{
			Sample:    r.SampleID,
			Attribute: r.Attribute.Name,
			Rect:      rectArray(r.Rect),
		}
		pred, err := s.classifier.Predict(ctx, r.Image)
		if err != nil {
			if ctx.Err() != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, ctx.Err().Error())
			}
			rr.Rating = form.NeutralRating
			rr.Reason = err.Error()
			rr.Degraded = true
		} else {
			rr.Rating = pred.Rating
			rr.Degraded = pred.Degraded
			rr.Reason = pred.Reason
		}
		outcome := "predicted"
		if rr.Degraded {
			outcome = "degraded"
		}
		s.metrics.RecordRegion(metricsMode, outcome)
		resp.Regions = append(resp.Regions, rr)
	}

	d := time.Since(start)
	resp.DurationMS = d.Milliseconds()
	s.metrics.RecordForm(metricsMode, "ok", d)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSessions(c echo.Context) error {
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}
	recs, err := s.sessions.ListSessions(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, recs)
}

func statusFor(err error) int {
	switch {
	case errors.IsCategory(err, errors.CategoryImageLoad):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func rectArray(r image.Rectangle) [4]int {
	return [4]int{r.Min.X, r.Min.Y, r.Max.X, r.Max.Y}
}
