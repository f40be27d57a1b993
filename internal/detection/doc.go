// Package detection finds the structural features of a scanned form.
//
// Two analyses are provided:
//
//   - DetectAxisLines: a Hough line transform restricted to angles near the
//     image axes. The boundary detector uses it to find the printed cross
//     that separates the four sample quadrants.
//   - AnalyzeInk: ink coverage and edge density of an attribute region, used
//     to flag regions that carry no marking at all.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// # Hough Parameterization
//
// Lines are represented as rho = x*cos(theta) + y*sin(theta). Vertical lines
// have theta near 0 degrees and horizontal lines theta near 90 degrees, so an
// angle tolerance of 15 degrees searches 31 angles per orientation rather
// than the full half circle.
//
// # Limitations
//
// The transform works on a binary edge map, so thick printed rules produce
// two parallel lines (one per side). Callers that need a single position
// should aggregate, e.g. with a median.
package detection
