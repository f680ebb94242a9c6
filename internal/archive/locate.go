package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pocketsync/reconcile/internal/synerrors"
)

// defaultPrimaryName is the filename Clone creates for a brand-new
// hierarchical archive when no destination is given.
const defaultPrimaryName = "primary" + Extension

// Locate resolves a CLI-supplied (possibly empty) destination path to a
// Store, auto-detecting the archive shape from the Extension files and
// four-digit year directories it finds (spec.md §6). An empty explicit
// path falls back to dir, the output-directory-override /
// current-directory default.
func Locate(explicit, dir string) (Store, error) {
	if explicit == "" {
		explicit = dir
	}
	if explicit == "" {
		explicit = "."
	}

	info, err := os.Stat(explicit)
	if err != nil {
		if os.IsNotExist(err) {
			// Creating a fresh archive: treat explicit as the primary file
			// path if it looks like a file (has an extension), else as a
			// hierarchical archive root.
			if filepath.Ext(explicit) != "" {
				return SingleFileStore{Path: explicit}, nil
			}
			return HierarchicalStore{PrimaryPath: filepath.Join(explicit, defaultPrimaryName)}, nil
		}
		return nil, &synerrors.UserInputError{Msg: fmt.Sprintf("locating archive at %q: %v", explicit, err)}
	}

	if !info.IsDir() {
		return SingleFileStore{Path: explicit}, nil
	}

	// A directory: a year directory beside at least one Extension file
	// selects a hierarchical archive rooted at the first such file;
	// otherwise exactly one Extension file is a single-file archive, none
	// starts a fresh hierarchical archive, and several are ambiguous.
	entries, err := os.ReadDir(explicit)
	if err != nil {
		return nil, &synerrors.LocalError{Msg: fmt.Sprintf("reading archive directory %q", explicit), Err: err}
	}

	var candidates []string
	hasYearDir := false
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() && isYearDirName(name) {
			hasYearDir = true
			continue
		}
		if !e.IsDir() && filepath.Ext(name) == Extension {
			candidates = append(candidates, filepath.Join(explicit, name))
		}
	}

	switch {
	case hasYearDir && len(candidates) >= 1:
		return HierarchicalStore{PrimaryPath: candidates[0]}, nil
	case len(candidates) == 1:
		return SingleFileStore{Path: candidates[0]}, nil
	case len(candidates) == 0:
		return HierarchicalStore{PrimaryPath: filepath.Join(explicit, defaultPrimaryName)}, nil
	default:
		return nil, &synerrors.UserInputError{Msg: fmt.Sprintf("ambiguous archive in %q: multiple candidate files, specify one explicitly", explicit)}
	}
}

func isYearDirName(name string) bool {
	if len(name) != 4 {
		return false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
