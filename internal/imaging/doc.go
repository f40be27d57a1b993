// Package imaging provides the pixel-level building blocks of the form
// pipeline: loading, grayscale conversion, cropping and resizing, Canny edge
// detection, debug overlays and pixel comparison.
//
// All operations use the standard image coordinate system where (0,0) is at
// the top-left corner, X increases rightward, and Y increases downward.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For regions, (x1,y1) is inclusive (top-left), (x2,y2) is exclusive (bottom-right)
//
// # Loading
//
// Load decodes PNG, JPEG, GIF, BMP and TIFF files and applies EXIF
// orientation, so a phone photo taken sideways is processed upright. Files
// that cannot be decoded, and images with zero area, produce a *LoadError.
//
// # Determinism
//
// Cropping, resizing and edge detection are pure functions of their inputs.
// Row-parallel loops write disjoint rows, so the output never depends on
// goroutine scheduling. The training and inference paths rely on this to
// produce byte-identical regions.
//
// # Thread Safety
//
// Cache is safe for concurrent use. All other functions are stateless and
// may be called concurrently on different images.
package imaging
