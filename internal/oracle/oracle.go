// Package oracle is the HTTP client for the external boundary oracle, a
// vision model service that proposes the four sample rectangles of a form.
package oracle

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/ironsheep/formscan/internal/config"
	"github.com/ironsheep/formscan/internal/errors"
	"github.com/ironsheep/formscan/internal/form"
	fsimaging "github.com/ironsheep/formscan/internal/imaging"
	"github.com/ironsheep/formscan/internal/logger"
)

// maxResponseBytes bounds the oracle response read into memory.
const maxResponseBytes = 1 << 20

// Error reports a failed oracle call: transport failure, timeout, non-2xx
// status or a malformed payload.
type Error struct {
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("oracle %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("oracle %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) ErrorCategory() errors.ErrorCategory { return errors.CategoryOracle }

// Client calls the oracle endpoint. It is safe for concurrent use.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
	limiter  *rate.Limiter
	cache    *cache.Cache
	log      logger.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client from settings.
func New(s config.OracleSettings, log logger.Logger, opts ...Option) (*Client, error) {
	if s.Endpoint == "" {
		return nil, errors.Newf("oracle endpoint not configured").
			Component("oracle").
			Category(errors.CategoryConfiguration).
			Build()
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	perMinute := s.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}

	c := &Client{
		endpoint: s.Endpoint,
		apiKey:   s.APIKey,
		model:    s.Model,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(perMinute/60), 1),
		log:      log.Module("oracle"),
	}
	if s.CacheTTL > 0 {
		c.cache = cache.New(s.CacheTTL, 2*s.CacheTTL)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type request struct {
	Image    string   `json:"image"`
	MimeType string   `json:"mime_type"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Samples  []string `json:"samples"`
	Model    string   `json:"model,omitempty"`
}

// Boundaries asks the oracle for the sample rectangles of img. Returned
// rectangles are in img's pixel coordinates; they are not validated.
func (c *Client) Boundaries(ctx context.Context, img image.Image) (map[form.SampleID]image.Rectangle, error) {
	png, err := fsimaging.PNGBytes(img)
	if err != nil {
		return nil, &Error{Op: "encode", Err: err}
	}
	sum := sha256.Sum256(png)
	key := hex.EncodeToString(sum[:])

	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			c.log.Debug("oracle cache hit", logger.String("hash", key[:12]))
			return copyRects(v.(map[form.SampleID]image.Rectangle)), nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Op: "rate limit", Err: err}
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	samples := make([]string, 0, form.SampleCount)
	for _, id := range form.Samples() {
		samples = append(samples, id.Key())
	}
	body, err := json.Marshal(request{
		Image:    base64.StdEncoding.EncodeToString(png),
		MimeType: "image/png",
		Width:    w,
		Height:   h,
		Samples:  samples,
		Model:    c.model,
	})
	if err != nil {
		return nil, &Error{Op: "encode", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Op: "request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, &Error{Op: "request", Status: resp.StatusCode, Err: fmt.Errorf("%s", bytes.TrimSpace(snippet))}
	}

	obj, err := jason.NewObjectFromReader(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Op: "decode", Err: err}
	}
	rects, err := parseBoundaries(obj, w, h)
	if err != nil {
		return nil, &Error{Op: "decode", Err: err}
	}

	c.log.Debug("oracle answered",
		logger.Int("width", w),
		logger.Int("height", h),
		logger.Duration("elapsed", time.Since(start)))

	if c.cache != nil {
		c.cache.SetDefault(key, copyRects(rects))
	}
	return rects, nil
}

// parseBoundaries reads the samples object and rescales coordinates from the
// image_size the oracle saw to w x h.
func parseBoundaries(obj *jason.Object, w, h int) (map[form.SampleID]image.Rectangle, error) {
	sx, sy := 1.0, 1.0
	if size, err := obj.GetObject("image_size"); err == nil {
		ow, werr := size.GetFloat64("width")
		oh, herr := size.GetFloat64("height")
		if werr != nil || herr != nil || ow <= 0 || oh <= 0 {
			return nil, fmt.Errorf("invalid image_size")
		}
		sx, sy = float64(w)/ow, float64(h)/oh
	}

	samples, err := obj.GetObject("samples")
	if err != nil {
		return nil, fmt.Errorf("samples: %w", err)
	}

	out := make(map[form.SampleID]image.Rectangle, form.SampleCount)
	for _, id := range form.Samples() {
		s, err := samples.GetObject(id.Key())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id.Key(), err)
		}
		var v [4]float64
		for i, k := range []string{"x_start", "x_end", "y_start", "y_end"} {
			if v[i], err = s.GetFloat64(k); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", id.Key(), k, err)
			}
		}
		// Literal, not image.Rect, so inverted boxes reach validation as-is.
		out[id] = image.Rectangle{
			Min: image.Pt(scale(v[0], sx), scale(v[2], sy)),
			Max: image.Pt(scale(v[1], sx), scale(v[3], sy)),
		}
	}
	return out, nil
}

func scale(v, f float64) int { return int(math.Round(v * f)) }

func copyRects(in map[form.SampleID]image.Rectangle) map[form.SampleID]image.Rectangle {
	out := make(map[form.SampleID]image.Rectangle, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
