package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agpm-dev/agpm/internal/lockfile"
	"github.com/agpm-dev/agpm/internal/restype"
)

func newTreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the resolved dependency tree from agpm.lock",
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
			merged := lockfile.Merged(tracked, private)

			byIdentity := make(map[string]*lockfile.LockedResource)
			childOf := make(map[string]bool) // identities that appear as someone's dependency
			var roots []*lockfile.LockedResource
			for _, t := range restype.All {
				for _, r := range merged.GetResources(t) {
					byIdentity[identityOf(r)] = r
				}
			}
			for _, r := range byIdentity {
				for _, ref := range r.DependencyRefs() {
					childOf[refIdentity(ref, r.Source)] = true
				}
			}
			for _, r := range byIdentity {
				if !childOf[identityOf(r)] {
					roots = append(roots, r)
				}
			}
			sort.Slice(roots, func(i, j int) bool {
				if roots[i].ResourceType != roots[j].ResourceType {
					return roots[i].ResourceType < roots[j].ResourceType
				}
				return roots[i].Name < roots[j].Name
			})

			w := cmd.OutOrStdout()
			seen := make(map[string]bool)
			for _, r := range roots {
				printTreeNode(w, r, byIdentity, 0, seen)
			}
			return nil
		},
	}
	return cmd
}

func identityOf(r *lockfile.LockedResource) string {
	return string(r.ResourceType) + "\x00" + r.Source + "\x00" + r.Name
}

func refIdentity(ref lockfile.DependencyRef, parentSource string) string {
	source := ref.Source
	if source == "" {
		source = parentSource
	}
	return string(ref.Type) + "\x00" + source + "\x00" + ref.Name
}

func printTreeNode(w interface{ Write([]byte) (int, error) }, r *lockfile.LockedResource, byIdentity map[string]*lockfile.LockedResource, depth int, seen map[string]bool) {
	indent := strings.Repeat("  ", depth)
	label := r.Name
	if r.Version != "" {
		label += "@" + r.Version
	}
	fmt.Fprintf(w, "%s- %s (%s)\n", indent, label, r.ResourceType)

	id := identityOf(r)
	if seen[id] {
		return
	}
	seen[id] = true

	for _, ref := range r.DependencyRefs() {
		child, ok := byIdentity[refIdentity(ref, r.Source)]
		if !ok {
			continue
		}
		printTreeNode(w, child, byIdentity, depth+1, seen)
	}
}
