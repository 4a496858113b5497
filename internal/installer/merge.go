package installer

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/agpm-dev/agpm/internal/agpmerrors"
	"github.com/agpm-dev/agpm/internal/atomicfile"
	"github.com/agpm-dev/agpm/internal/render"
)

// mergeCoordinator serializes concurrent merges into the same hook/MCP
// merge-target file: several locked resources can share one destination
// (spec §9 Open Question 3 resolves the merge itself as deep-merge), so
// writes to that file must not race even though installOne runs every
// entry concurrently.
type mergeCoordinator struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMergeCoordinator() *mergeCoordinator {
	return &mergeCoordinator{locks: make(map[string]*sync.Mutex)}
}

func (m *mergeCoordinator) lockFor(path string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[path]
	if !ok {
		l = &sync.Mutex{}
		m.locks[path] = l
	}
	return l
}

// merge reads the existing JSON document at path (if any), deep-merges
// content's JSON object into it, and atomically writes the result back.
// Sibling keys in the file that no agpm resource owns survive untouched.
func (m *mergeCoordinator) merge(path string, content []byte) error {
	lock := m.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	var incoming map[string]any
	if err := json.Unmarshal(content, &incoming); err != nil {
		return agpmerrors.NewMergeError(path, err)
	}

	existing := make(map[string]any)
	if data, err := os.ReadFile(path); err == nil {
		if uerr := json.Unmarshal(data, &existing); uerr != nil {
			return agpmerrors.NewMergeError(path, uerr)
		}
	} else if !os.IsNotExist(err) {
		return agpmerrors.NewMergeError(path, err)
	}

	merged := render.DeepMerge(existing, incoming)

	out, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return agpmerrors.NewMergeError(path, err)
	}

	if err := atomicfile.Write(path, out, 0o644); err != nil {
		return agpmerrors.NewMergeError(path, err)
	}
	return nil
}
