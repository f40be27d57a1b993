// Package store is the append-only, rating-bucketed training-example store.
//
// Layout:
//
//	<root>/pipeline.yaml
//	<root>/<rating>/<form>-<key>_s<sample>_<attribute>_<timestamp>_<tag>.png
//
// key is form.SourceKey of the source path. The manifest records the
// pipeline the examples were extracted with. A store built with another
// pipeline refuses appends. Existing examples are never replaced.
package store

import (
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ironsheep/formscan/internal/config"
	"github.com/ironsheep/formscan/internal/errors"
	"github.com/ironsheep/formscan/internal/form"
	fsimaging "github.com/ironsheep/formscan/internal/imaging"
)

// TimestampLayout formats example timestamps in file names.
const TimestampLayout = "20060102T150405.000000000"

// Provenance records where an example came from.
type Provenance struct {
	SourceImage    string `json:"source_image"`
	BoundarySource string `json:"boundary_source"`
	SessionID      string `json:"session_id"`
}

// Example is one stored region image.
type Example struct {
	Image      *image.Gray    `json:"-"`
	Rating     form.Rating    `json:"rating"`
	Sample     form.SampleID  `json:"sample"`
	Attribute  form.Attribute `json:"attribute"`
	Tag        string         `json:"tag"`
	Timestamp  time.Time      `json:"timestamp"`
	Provenance Provenance     `json:"provenance"`
}

// ErrExists is returned by Append when an example with the same file name is
// already stored.
var ErrExists = errors.NewStd("example already stored")

// Store appends examples under a root directory. Appends are serialized and
// each file appears atomically.
type Store struct {
	root string
	mu   sync.Mutex
}

// Open opens or creates the store at root for pipeline p. An existing
// manifest must carry p's fingerprint.
func Open(root string, p config.Pipeline) (*Store, error) {
	_, err := config.CheckManifest(root, p)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		if err := config.WriteManifest(root, p); err != nil {
			return nil, storeError(err, root)
		}
	default:
		return nil, storeError(err, root)
	}
	return &Store{root: root}, nil
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// Append writes ex and returns its path. The rating must be 1-9. An existing
// file is left untouched and ErrExists is returned.
func (s *Store) Append(ex Example) (string, error) {
	if !ex.Rating.Valid() {
		return "", storeError(fmt.Errorf("cannot store rating %v", ex.Rating), s.root)
	}
	if ex.Image == nil || ex.Image.Bounds().Empty() {
		return "", storeError(fmt.Errorf("cannot store empty image"), s.root)
	}
	data, err := fsimaging.PNGBytes(ex.Image)
	if err != nil {
		return "", storeError(err, s.root)
	}

	dir := filepath.Join(s.root, strconv.Itoa(int(ex.Rating)))
	name := FileName(ex)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", storeError(err, s.root)
	}
	path := filepath.Join(dir, name)
	if err := writeAtomic(dir, path, data); err != nil {
		return "", errors.New(err).
			Component("store").
			Category(errors.CategoryStore).
			Context("root", s.root).
			Context("file", name).
			Build()
	}
	return path, nil
}

// FileName builds <form>-<key>_s<sample>_<attribute>_<timestamp>_<tag>.png.
func FileName(ex Example) string {
	src := ex.Provenance.SourceImage
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return fmt.Sprintf("%s-%s_s%d_%s_%s_%s.png",
		sanitize(base), form.SourceKey(src), ex.Sample, sanitize(ex.Attribute.Name),
		ex.Timestamp.UTC().Format(TimestampLayout), sanitize(ex.Tag))
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(s, "-")
	if s == "" {
		return "unnamed"
	}
	return s
}

func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".example-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	defer os.Remove(tmpName)

	// Link fails when path exists, so a stored example is never replaced.
	err = os.Link(tmpName, path)
	if errors.Is(err, fs.ErrExist) {
		return ErrExists
	}
	if err == nil {
		return nil
	}
	// Filesystems without hard links: the caller holds the store lock.
	if _, serr := os.Lstat(path); serr == nil {
		return ErrExists
	}
	return os.Rename(tmpName, path)
}

// Counts returns the number of stored examples per rating.
func (s *Store) Counts() (map[form.Rating]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[form.Rating]int)
	for r := form.MinRating; r <= form.MaxRating; r++ {
		entries, err := os.ReadDir(filepath.Join(s.root, strconv.Itoa(int(r))))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, storeError(err, s.root)
		}
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ".png" && !strings.HasPrefix(e.Name(), ".") {
				counts[r]++
			}
		}
	}
	return counts, nil
}

func storeError(err error, root string) error {
	return errors.New(err).
		Component("store").
		Category(errors.CategoryStore).
		Context("root", root).
		Build()
}
