// Package ocr reads the printed header of a form with Tesseract.
//
// The header (panelist, session, date) sits above the sample grid and is
// excluded from every quadrant by the top margin. Reading it is optional; the
// text is recorded as provenance in the session log and never influences
// region geometry.
//
// # Prerequisites
//
// Tesseract and its language data must be installed, and the binary must be
// built with cgo:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// Without cgo, New returns ErrUnavailable and the session runs without
// header text.
package ocr
