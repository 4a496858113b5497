package main

import (
	"github.com/agpm-dev/agpm/internal/manifest"
	"github.com/agpm-dev/agpm/internal/pathutil"
	"github.com/agpm-dev/agpm/internal/sourcecache"
)

// project bundles the handles every subcommand needs: the merged manifest
// (project + private overlay), the path layout, and the source cache.
type project struct {
	manifest  *manifest.Manifest
	conflicts []manifest.Conflict
	origin    manifest.PrivateOrigin
	paths     *pathutil.Paths
	cache     *sourcecache.Cache
}

// loadProject loads the manifest (with private overlay) rooted at dir and
// wires up the path layout and source cache every command needs.
func loadProject(dir string) (*project, error) {
	m, conflicts, origin, err := manifest.LoadWithPrivate(dir)
	if err != nil {
		return nil, err
	}

	paths, err := pathutil.New(m.Dir())
	if err != nil {
		return nil, err
	}

	return &project{
		manifest:  m,
		conflicts: conflicts,
		origin:    origin,
		paths:     paths,
		cache:     sourcecache.New(paths),
	}, nil
}
