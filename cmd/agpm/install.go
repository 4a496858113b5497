package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agpm-dev/agpm/internal/installer"
	"github.com/agpm-dev/agpm/internal/lockfile"
)

func newInstallCmd() *cobra.Command {
	var frozen bool
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Resolve (unless --frozen) and install resources into tool directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(projectDir)
			if err != nil {
				return err
			}

			var lock *lockfile.Lockfile
			if frozen {
				tracked, _, err := lockfile.Load(p.manifest.Dir())
				if err != nil {
					return err
				}
				private, _, err := lockfile.LoadPrivate(p.manifest.Dir())
				if err != nil {
					return err
				}
				lock = lockfile.Merged(tracked, private)
			} else {
				lock, _, err = resolveLockfile(cmd)
				if err != nil {
					return err
				}
			}

			inst := installer.New(p.manifest, p.paths, p.cache,
				installer.WithProgress(func(done, total int) {
					fmt.Fprintf(cmd.ErrOrStderr(), "\rinstalling %d/%d", done, total)
				}),
			)

			result, err := inst.Install(cmd.Context(), lock)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr())
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\ninstalled %d resource(s)\n", len(result.Installed))
			return nil
		},
	}
	cmd.Flags().BoolVar(&frozen, "frozen", false, "install strictly from the existing lockfile, without re-resolving")
	return cmd
}
