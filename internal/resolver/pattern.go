package resolver

import (
	"os"

	"github.com/bmatcuk/doublestar/v4"
)

// globRelative expands a doublestar glob pattern against baseDir, returning
// matched paths relative to baseDir in deterministic (sorted, doublestar's
// own ordering) order. Used for manifest pattern dependencies
// (path = "agents/*.md") expanded at resolution time into one concrete
// dependency per match, per spec §4.G step 3.
func globRelative(baseDir, pattern string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(baseDir), pattern)
	if err != nil {
		return nil, err
	}
	return matches, nil
}
