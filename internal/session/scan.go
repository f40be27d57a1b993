package session

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/ironsheep/formscan/internal/errors"
	"github.com/ironsheep/formscan/internal/imaging"
)

// Scan expands inputs into the ordered list of forms to process.
//
// Directories contribute their raster files, sorted by path, descending into
// subdirectories only when recursive is set. Files named explicitly are kept
// whatever their extension or existence, so an unreadable or missing file
// shows up as a failed form rather than vanishing from the log. Duplicates
// keep their first position.
func Scan(inputs []string, recursive bool) ([]string, error) {
	var forms []string
	seen := make(map[string]bool)
	add := func(p string) {
		key := filepath.Clean(p)
		if abs, err := filepath.Abs(key); err == nil {
			key = abs
		}
		if seen[key] {
			return
		}
		seen[key] = true
		forms = append(forms, p)
	}

	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil || !info.IsDir() {
			add(in)
			continue
		}
		found, err := scanDir(in, recursive)
		if err != nil {
			return nil, errors.New(err).
				Component("session").
				Category(errors.CategoryFileIO).
				FileContext(in).
				Build()
		}
		for _, p := range found {
			add(p)
		}
	}
	return forms, nil
}

func scanDir(root string, recursive bool) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if imaging.IsSupported(d.Name()) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(found)
	return found, nil
}
