package imaging

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/patrickmn/go-cache"

	fserrors "github.com/ironsheep/formscan/internal/errors"
)

// RawImage is a decoded form photograph as it came off disk.
//
// EXIF orientation has already been applied, so Width and Height describe the
// image as a human would view it. A RawImage is never modified after Load
// returns it.
type RawImage struct {
	// Image holds the decoded pixels. The concrete type depends on the
	// source format (*image.YCbCr for JPEG, *image.NRGBA after reorientation).
	Image image.Image

	// Path is the source file, or the upload name for in-memory decodes.
	Path string

	// Format is the lower-case format name derived from the extension:
	// "png", "jpeg", "gif", "bmp", "tiff" or "unknown".
	Format string

	Width  int
	Height int
}

// Bounds returns the pixel rectangle of the image.
func (r *RawImage) Bounds() image.Rectangle { return r.Image.Bounds() }

// LoadError reports a source that cannot be turned into pixels: missing or
// unreadable file, undecodable bytes, or an image with zero area.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) ErrorCategory() fserrors.ErrorCategory { return fserrors.CategoryImageLoad }

// ErrEmptyImage is wrapped by LoadError for zero-area images.
var ErrEmptyImage = fserrors.NewStd("image has zero area")

// SupportedExtensions lists the raster formats the loader can decode.
var SupportedExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff"}

// IsSupported reports whether path has a decodable raster extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Load decodes the image at path, applying EXIF orientation.
//
// Parameters:
//   - path: File path of a PNG, JPEG, GIF, BMP or TIFF image.
//
// Returns:
//   - *RawImage: The decoded image with its metadata.
//   - error: A *LoadError if the file cannot be opened or decoded, or if the
//     decoded image has zero width or height.
func Load(path string) (*RawImage, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return newRaw(img, path)
}

// Decode reads an image from r. The name is used for the format and for
// error messages only.
func Decode(r io.Reader, name string) (*RawImage, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &LoadError{Path: name, Err: err}
	}
	return newRaw(img, name)
}

// FromImage wraps an in-memory image, applying the same zero-area check as
// Load.
func FromImage(img image.Image, name string) (*RawImage, error) {
	return newRaw(img, name)
}

func newRaw(img image.Image, path string) (*RawImage, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &LoadError{Path: path, Err: ErrEmptyImage}
	}
	return &RawImage{
		Image:  img,
		Path:   path,
		Format: formatName(path),
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

func formatName(path string) string {
	f, err := imaging.FormatFromFilename(path)
	if err != nil {
		return "unknown"
	}
	return strings.ToLower(f.String())
}

// Cache keeps recently loaded images in memory for tool servers that touch
// the same form repeatedly. Entries expire after the configured TTL.
//
// Cache is safe for concurrent use.
type Cache struct {
	items *cache.Cache
}

// NewCache creates a cache whose entries live for ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{items: cache.New(ttl, 2*ttl)}
}

// Load returns the cached image for path or loads and caches it.
//
// The cache is keyed by the exact path string. Different spellings of the
// same file produce separate entries.
func (c *Cache) Load(path string) (*RawImage, error) {
	if v, ok := c.items.Get(path); ok {
		return v.(*RawImage), nil
	}
	raw, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.items.SetDefault(path, raw)
	return raw, nil
}

// Evict drops path from the cache.
func (c *Cache) Evict(path string) { c.items.Delete(path) }

// Clear drops every entry.
func (c *Cache) Clear() { c.items.Flush() }

// Len returns the number of cached images.
func (c *Cache) Len() int { return c.items.ItemCount() }

// ImageInfo describes a loaded form image.
type ImageInfo struct {
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Format        string `json:"format"`
	FileSizeBytes int64  `json:"file_size_bytes"`
}

// Info returns metadata for a RawImage. The file size is 0 for in-memory
// images.
func Info(raw *RawImage) *ImageInfo {
	info := &ImageInfo{Width: raw.Width, Height: raw.Height, Format: raw.Format}
	if st, err := os.Stat(raw.Path); err == nil {
		info.FileSizeBytes = st.Size()
	}
	return info
}
