package oracle

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/formscan/internal/config"
	"github.com/ironsheep/formscan/internal/errors"
	"github.com/ironsheep/formscan/internal/form"
	"github.com/ironsheep/formscan/internal/logger"
)

const testEndpoint = "https://oracle.example.test/v1/boundaries"

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func newTestClient(t *testing.T, mutate ...func(*config.OracleSettings)) *Client {
	t.Helper()
	s := config.OracleSettings{
		Endpoint:          testEndpoint,
		APIKey:            "secret",
		Timeout:           5 * time.Second,
		RequestsPerMinute: 60000,
		CacheTTL:          time.Minute,
	}
	for _, m := range mutate {
		m(&s)
	}
	c, err := New(s, logger.NewDiscard())
	require.NoError(t, err)
	return c
}

func testImage(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 251)
	}
	return img
}

// oracleResponse answers in a 500x400 coordinate space.
func oracleResponse() string {
	return `{
  "image_size": {"width": 500, "height": 400},
  "samples": {
    "sample_1": {"x_start": 15, "x_end": 245, "y_start": 48, "y_end": 235},
    "sample_2": {"x_start": 255, "x_end": 485, "y_start": 48, "y_end": 235},
    "sample_3": {"x_start": 15, "x_end": 245, "y_start": 245, "y_end": 380},
    "sample_4": {"x_start": 255, "x_end": 485, "y_start": 245, "y_end": 380.4}
  }
}`
}

func TestBoundaries_RescalesToImage(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("POST", testEndpoint, httpmock.NewStringResponder(http.StatusOK, oracleResponse()))

	c := newTestClient(t)
	rects, err := c.Boundaries(context.Background(), testImage(1000, 800))
	require.NoError(t, err)
	require.Len(t, rects, 4)

	assert.Equal(t, image.Rect(30, 96, 490, 470), rects[1])
	assert.Equal(t, image.Rect(510, 96, 970, 470), rects[2])
	assert.Equal(t, image.Rect(30, 490, 490, 760), rects[3])
	assert.Equal(t, image.Rect(510, 490, 970, 761), rects[4])
}

func TestBoundaries_RequestShape(t *testing.T) {
	setupHTTPMock(t)
	var got map[string]any
	var auth string
	httpmock.RegisterResponder("POST", testEndpoint, func(req *http.Request) (*http.Response, error) {
		auth = req.Header.Get("Authorization")
		if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
			return nil, err
		}
		return httpmock.NewStringResponse(http.StatusOK, oracleResponse()), nil
	})

	c := newTestClient(t, func(s *config.OracleSettings) { s.Model = "layout-v2" })
	_, err := c.Boundaries(context.Background(), testImage(500, 400))
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "image/png", got["mime_type"])
	assert.EqualValues(t, 500, got["width"])
	assert.EqualValues(t, 400, got["height"])
	assert.Equal(t, "layout-v2", got["model"])
	assert.Equal(t, []any{"sample_1", "sample_2", "sample_3", "sample_4"}, got["samples"])
	assert.NotEmpty(t, got["image"])
}

func TestBoundaries_NoImageSizeMeansNative(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("POST", testEndpoint, httpmock.NewStringResponder(http.StatusOK, `{
  "samples": {
    "sample_1": {"x_start": 1, "x_end": 2, "y_start": 3, "y_end": 4},
    "sample_2": {"x_start": 5, "x_end": 6, "y_start": 7, "y_end": 8},
    "sample_3": {"x_start": 9, "x_end": 10, "y_start": 11, "y_end": 12},
    "sample_4": {"x_start": 13, "x_end": 14, "y_start": 15, "y_end": 16}
  }
}`))

	rects, err := newTestClient(t).Boundaries(context.Background(), testImage(64, 64))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(1, 3, 2, 4), rects[1])
	assert.Equal(t, image.Rect(13, 15, 14, 16), rects[4])
}

func TestBoundaries_InvertedBoxKept(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("POST", testEndpoint, httpmock.NewStringResponder(http.StatusOK, `{
  "samples": {
    "sample_1": {"x_start": 50, "x_end": 10, "y_start": 3, "y_end": 40},
    "sample_2": {"x_start": 5, "x_end": 6, "y_start": 7, "y_end": 8},
    "sample_3": {"x_start": 9, "x_end": 10, "y_start": 11, "y_end": 12},
    "sample_4": {"x_start": 13, "x_end": 14, "y_start": 15, "y_end": 16}
  }
}`))

	rects, err := newTestClient(t).Boundaries(context.Background(), testImage(64, 64))
	require.NoError(t, err)
	assert.Equal(t, 50, rects[1].Min.X)
	assert.Equal(t, 10, rects[1].Max.X)
}

func TestBoundaries_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error": "overloaded"}`},
		{"unauthorized", http.StatusUnauthorized, `denied`},
		{"not json", http.StatusOK, `<html>oops</html>`},
		{"missing samples", http.StatusOK, `{"image_size": {"width": 10, "height": 10}}`},
		{"missing sample", http.StatusOK, `{"samples": {"sample_1": {"x_start": 1, "x_end": 2, "y_start": 3, "y_end": 4}}}`},
		{"non-numeric", http.StatusOK, `{"samples": {"sample_1": {"x_start": "left", "x_end": 2, "y_start": 3, "y_end": 4}}}`},
		{"bad image size", http.StatusOK, `{"image_size": {"width": 0, "height": 10}, "samples": {}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupHTTPMock(t)
			httpmock.RegisterResponder("POST", testEndpoint, httpmock.NewStringResponder(tt.status, tt.body))

			_, err := newTestClient(t).Boundaries(context.Background(), testImage(32, 32))
			require.Error(t, err)

			var oerr *Error
			require.ErrorAs(t, err, &oerr)
			assert.True(t, errors.IsCategory(err, errors.CategoryOracle))
			if tt.status != http.StatusOK {
				assert.Equal(t, tt.status, oerr.Status)
			}
		})
	}
}

func TestBoundaries_TransportError(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("POST", testEndpoint, httpmock.NewErrorResponder(errors.NewStd("connection refused")))

	_, err := newTestClient(t).Boundaries(context.Background(), testImage(32, 32))
	var oerr *Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, "request", oerr.Op)
}

func TestBoundaries_CachedByImage(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("POST", testEndpoint, httpmock.NewStringResponder(http.StatusOK, oracleResponse()))

	c := newTestClient(t)
	img := testImage(100, 80)
	first, err := c.Boundaries(context.Background(), img)
	require.NoError(t, err)

	first[1] = image.Rectangle{}
	second, err := c.Boundaries(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(3, 10, 49, 47), second[1], "cached result must not alias caller maps")
	assert.Equal(t, 1, httpmock.GetTotalCallCount())

	_, err = c.Boundaries(context.Background(), testImage(101, 80))
	require.NoError(t, err)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestBoundaries_CacheDisabled(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("POST", testEndpoint, httpmock.NewStringResponder(http.StatusOK, oracleResponse()))

	c := newTestClient(t, func(s *config.OracleSettings) { s.CacheTTL = 0 })
	img := testImage(100, 80)
	for range 2 {
		_, err := c.Boundaries(context.Background(), img)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestBoundaries_CancelledContext(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("POST", testEndpoint, httpmock.NewStringResponder(http.StatusOK, oracleResponse()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(t).Boundaries(ctx, testImage(16, 16))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_RequiresEndpoint(t *testing.T) {
	_, err := New(config.OracleSettings{}, logger.NewDiscard())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestOracleSatisfiesPort(t *testing.T) {
	var _ interface {
		Boundaries(context.Context, image.Image) (map[form.SampleID]image.Rectangle, error)
	} = (*Client)(nil)
}
