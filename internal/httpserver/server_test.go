package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/formscan/internal/classifier"
	"github.com/ironsheep/formscan/internal/config"
	"github.com/ironsheep/formscan/internal/datastore"
	"github.com/ironsheep/formscan/internal/form"
	"github.com/ironsheep/formscan/internal/logger"
	"github.com/ironsheep/formscan/internal/metrics"
	"github.com/ironsheep/formscan/internal/pipeline"
)

type fakeSessions struct {
	limit int
}

func (f *fakeSessions) ListSessions(_ context.Context, limit int) ([]datastore.SessionRecord, error) {
	f.limit = limit
	return []datastore.SessionRecord{{SessionID: "s-1", Mode: "inference", StartedAt: time.Unix(0, 0).UTC()}}, nil
}

func newTestServer(t *testing.T, sessions SessionLister) (*Server, *metrics.Metrics) {
	t.Helper()
	ex, err := pipeline.New(config.DefaultPipeline(), nil, nil, logger.NewDiscard())
	require.NoError(t, err)
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	cls := classifier.LoadOrPlaceholder(nil, logger.NewDiscard())
	return New(ex, cls, Options{Metrics: m, Sessions: sessions}, logger.NewDiscard()), m
}

func formPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 400, 320))
	for y := 0; y < 320; y++ {
		for x := 0; x < 400; x++ {
			v := uint8(225)
			if x == 200 || y == 192 {
				v = 10
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, field, name string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/forms/predict", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "placeholder", resp.Classifier)
	assert.Equal(t, config.DefaultPipeline().ShortFingerprint(), resp.Pipeline)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestPipeline(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/pipeline", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PipelineResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, config.DefaultPipeline().Fingerprint(), resp.Fingerprint)
	assert.Equal(t, config.DefaultPipeline().Regions.Attributes, resp.Pipeline.Regions.Attributes)
}

func TestPredict(t *testing.T) {
	s, m := newTestServer(t, nil)
	rec := serve(s, uploadRequest(t, "image", "form_007.png", formPNG(t)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "form_007.png", resp.Form)
	assert.Equal(t, 400, resp.Width)
	require.Len(t, resp.Regions, 20)
	for _, r := range resp.Regions {
		assert.Equal(t, form.NeutralRating, r.Rating)
		assert.True(t, r.Degraded)
		assert.Equal(t, classifier.ReasonNoModel, r.Reason)
	}

	metricsRec := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, metricsRec.Code)
	assert.Contains(t, metricsRec.Body.String(), `formscan_forms_total{mode="http",status="ok"} 1`)
	assert.NotNil(t, m)
}

type failingClassifier struct{}

func (failingClassifier) Name() string { return "failing" }

func (failingClassifier) Predict(context.Context, *image.Gray) (classifier.Prediction, error) {
	return classifier.Prediction{}, &classifier.PredictionError{Err: fmt.Errorf("tensor invoke failed")}
}

func TestPredict_ClassifierErrorIsNeutral(t *testing.T) {
	ex, err := pipeline.New(config.DefaultPipeline(), nil, nil, logger.NewDiscard())
	require.NoError(t, err)
	s := New(ex, failingClassifier{}, Options{}, logger.NewDiscard())

	rec := serve(s, uploadRequest(t, "image", "form_008.png", formPNG(t)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Regions, 20)
	for _, r := range resp.Regions {
		assert.Equal(t, form.NeutralRating, r.Rating)
		assert.True(t, r.Degraded)
		assert.Contains(t, r.Reason, "tensor invoke failed")
	}
}

func TestPredict_Errors(t *testing.T) {
	s, _ := newTestServer(t, nil)

	tests := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"missing field", uploadRequest(t, "file", "form.png", formPNG(t)), http.StatusBadRequest},
		{"not an image", uploadRequest(t, "image", "form.png", []byte("garbage")), http.StatusUnprocessableEntity},
		{"wrong method", httptest.NewRequest(http.MethodGet, "/api/v1/forms/predict", nil), http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, tt.req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestSessions(t *testing.T) {
	t.Run("not registered without datastore", func(t *testing.T) {
		s, _ := newTestServer(t, nil)
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("lists with limit", func(t *testing.T) {
		fake := &fakeSessions{}
		s, _ := newTestServer(t, fake)
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/sessions?limit=5", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 5, fake.limit)
		assert.Contains(t, rec.Body.String(), `"SessionID":"s-1"`)
	})

	t.Run("bad limit", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeSessions{})
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/sessions?limit=x", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
