package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/agpm-dev/agpm/internal/lockfile"
	"github.com/agpm-dev/agpm/internal/restype"
)

func newListCmd() *cobra.Command {
	var resourceType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List locked resources from agpm.lock / agpm.private.lock",
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

			types := restype.All
			if resourceType != "" {
				t, err := restype.ParsePlural(resourceType)
				if err != nil {
					return err
				}
				types = []restype.Type{t}
			}

			var rows []*lockfile.LockedResource
			for _, t := range types {
				rows = append(rows, merged.GetResources(t)...)
			}
			sort.Slice(rows, func(i, j int) bool {
				if rows[i].ResourceType != rows[j].ResourceType {
					return rows[i].ResourceType < rows[j].ResourceType
				}
				return rows[i].Name < rows[j].Name
			})

			w := cmd.OutOrStdout()
			for _, r := range rows {
				version := r.Version
				if version == "" {
					version = "-"
				}
				fmt.Fprintf(w, "%-12s %-30s %-10s %s\n", r.ResourceType, r.Name, version, r.InstalledAt)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&resourceType, "type", "", "limit to one resource type (plural form, e.g. agents)")
	return cmd
}
