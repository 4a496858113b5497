package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agpm-dev/agpm/internal/lockfile"
	"github.com/agpm-dev/agpm/internal/manifest"
	"github.com/agpm-dev/agpm/internal/resolver"
	"github.com/agpm-dev/agpm/internal/restype"
)

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the manifest into a pinned lockfile, without installing",
		RunE: func(cmd *cobra.Command, args []string) error {
			lock, _, err := resolveLockfile(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %d resource(s)\n", len(lock.AllResources()))
			return nil
		},
	}
	return cmd
}

// resolveLockfile loads the project, resolves the manifest into a single
// merged lockfile, splits it by origin (project vs private overlay, per
// manifest.PrivateOrigin) and saves agpm.lock / agpm.private.lock, and
// returns the merged view other commands (list/tree) read from.
func resolveLockfile(cmd *cobra.Command) (*lockfile.Lockfile, *project, error) {
	p, err := loadProject(projectDir)
	if err != nil {
		return nil, nil, err
	}

	r := resolver.New(p.manifest, p.paths, p.cache)
	lock, err := r.ResolveAll(cmd.Context())
	if err != nil {
		return nil, nil, err
	}

	tracked, private := splitByOrigin(lock, p.origin)
	if err := tracked.Save(); err != nil {
		return nil, nil, err
	}
	if err := private.SavePrivate(); err != nil {
		return nil, nil, err
	}

	return lockfile.Merged(tracked, private), p, nil
}

// splitByOrigin partitions a freshly-resolved lockfile's per-type vectors
// into the subset whose owning manifest key came from agpm.private.toml and
// the subset that came from the project manifest, per spec.md's "a private
// lockfile mirrors entries originating in the private manifest" rule.
func splitByOrigin(lock *lockfile.Lockfile, origin manifest.PrivateOrigin) (tracked, private *lockfile.Lockfile) {
	tracked = lockfile.New(lock.Dir())
	private = lockfile.New(lock.Dir())
	tracked.Sources = lock.Sources
	private.Sources = lock.Sources

	for _, t := range restype.All {
		for _, r := range lock.GetResources(t) {
			key := r.ManifestAlias
			if key == "" {
				key = r.Name
			}
			if origin[t] != nil && origin[t][key] {
				private.AddResource(t, r)
			} else {
				tracked.AddResource(t, r)
			}
		}
	}
	return tracked, private
}
