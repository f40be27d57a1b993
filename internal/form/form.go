// Package form defines the shared vocabulary of a sensory-evaluation form:
// samples, attributes, ratings and the human labeling port.
package form

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/ironsheep/formscan/internal/errors"
)

// SampleCount is the number of samples on a form, laid out 2x2.
const SampleCount = 4

// SampleID identifies a quadrant: 1 top-left, 2 top-right, 3 bottom-left,
// 4 bottom-right.
type SampleID int

func (s SampleID) Valid() bool { return s >= 1 && s <= SampleCount }

// Key is the sample's name on the oracle wire format, e.g. "sample_1".
func (s SampleID) Key() string { return "sample_" + strconv.Itoa(int(s)) }

// Samples lists the sample ids in reading order.
func Samples() []SampleID { return []SampleID{1, 2, 3, 4} }

// SourceKey is a short hash of the cleaned form path. Forms with the same
// file name in different directories get different keys.
func SourceKey(path string) string {
	return fmt.Sprintf("%08x", uint32(xxhash.Sum64String(filepath.Clean(path))))
}

// Attribute is one rated row inside a sample, top to bottom.
type Attribute struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// Attributes builds the ordered attribute list from configured names.
func Attributes(names []string) []Attribute {
	out := make([]Attribute, len(names))
	for i, n := range names {
		out[i] = Attribute{Index: i, Name: n}
	}
	return out
}

// Rating is a circled value 1-9, or Unrated.
type Rating int

const (
	Unrated       Rating = 0
	MinRating     Rating = 1
	MaxRating     Rating = 9
	NeutralRating Rating = 5
)

func (r Rating) Valid() bool { return r >= MinRating && r <= MaxRating }

func (r Rating) String() string {
	if !r.Valid() {
		return "unrated"
	}
	return strconv.Itoa(int(r))
}

// ParseRating parses "1".."9".
func ParseRating(s string) (Rating, error) {
	n, err := strconv.Atoi(s)
	if err != nil || !Rating(n).Valid() {
		return Unrated, fmt.Errorf("rating must be 1-9, got %q", s)
	}
	return Rating(n), nil
}

// ResolutionKind is the outcome of asking a human about a region.
type ResolutionKind string

const (
	Rated        ResolutionKind = "rated"
	Skipped      ResolutionKind = "skipped"
	QualityIssue ResolutionKind = "quality_issue"
)

// Resolution is a human answer. Rating is set only for Rated.
type Resolution struct {
	Kind   ResolutionKind `json:"kind"`
	Rating Rating         `json:"rating,omitempty"`
}

func RatedAs(r Rating) Resolution { return Resolution{Kind: Rated, Rating: r} }
func Skip() Resolution            { return Resolution{Kind: Skipped} }
func Flag() Resolution            { return Resolution{Kind: QualityIssue} }

// RegionRef identifies an attribute region on a specific form.
type RegionRef struct {
	Form      string    `json:"form"`
	Sample    SampleID  `json:"sample"`
	Attribute Attribute `json:"attribute"`
}

func (r RegionRef) String() string {
	return fmt.Sprintf("%s sample %d %s", r.Form, r.Sample, r.Attribute.Name)
}

// ErrLabelingStopped is returned by a Labeler when the operator ends the
// session. The session stops dispatching forms and finalizes.
var ErrLabelingStopped = errors.NewStd("labeling stopped by operator")

// Labeler is the synchronous human-rating port used in training mode.
// Implementations may block for as long as the human takes. The session
// serializes calls, so implementations need not be safe for concurrent use.
type Labeler interface {
	RequestRating(ctx context.Context, ref RegionRef, preview string) (Resolution, error)
}
