package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agpm-dev/agpm/internal/installer"
	"github.com/agpm-dev/agpm/internal/lockfile"
	"github.com/agpm-dev/agpm/internal/resolver"
)

func newUpdateCmd() *cobra.Command {
	var only []string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Re-resolve and re-install a subset of dependencies (all, if --only is omitted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(projectDir)
			if err != nil {
				return err
			}

			tracked, _, err := lockfile.Load(p.manifest.Dir())
			if err != nil {
				return err
			}
			private, _, err := lockfile.LoadPrivate(p.manifest.Dir())
			if err != nil {
				return err
			}
			existing := lockfile.Merged(tracked, private)

			roots := resolveRootNames(p, only)

			r := resolver.New(p.manifest, p.paths, p.cache)
			updated, err := r.Update(cmd.Context(), existing, roots)
			if err != nil {
				return err
			}

			newTracked, newPrivate := splitByOrigin(updated, p.origin)
			if err := newTracked.Save(); err != nil {
				return err
			}
			if err := newPrivate.SavePrivate(); err != nil {
				return err
			}

			inst := installer.New(p.manifest, p.paths, p.cache)
			merged := lockfile.Merged(newTracked, newPrivate)

			var result *installer.Result
			if len(only) == 0 {
				result, err = inst.Install(cmd.Context(), merged)
			} else {
				result, err = inst.InstallOnly(cmd.Context(), merged, selectorsFor(merged, roots))
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "updated and installed %d resource(s)\n", len(result.Installed))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&only, "only", nil, "limit update to these dependency names (by manifest key, across all types)")
	return cmd
}

// resolveRootNames expands bare manifest keys from --only into the
// "type/name" root-identity strings the resolver expects, by scanning every
// declared resource for a name match across all seven types.
func resolveRootNames(p *project, only []string) []string {
	if len(only) == 0 {
		return nil
	}
	want := make(map[string]bool, len(only))
	for _, n := range only {
		want[n] = true
	}

	var out []string
	for _, entry := range p.manifest.AllResources() {
		if want[entry.Name] {
			out = append(out, entry.Type.Plural()+"/"+entry.Name)
		}
	}
	return out
}

// selectorsFor builds installer.Selector values for every locked resource
// whose owning root is among roots, so InstallOnly re-writes exactly the
// files update --only touched.
func selectorsFor(lock *lockfile.Lockfile, roots []string) []installer.Selector {
	rootSet := make(map[string]bool, len(roots))
	for _, r := range roots {
		rootSet[r] = true
	}

	var sels []installer.Selector
	for _, res := range lock.AllResources() {
		key := res.ManifestAlias
		if key == "" {
			key = res.Name
		}
		if rootSet[res.ResourceType.Plural()+"/"+key] {
			sels = append(sels, installer.Selector{Name: res.Name, Source: res.Source})
		}
	}
	return sels
}
