package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agpm-dev/agpm/internal/agpmerrors"
	"github.com/agpm-dev/agpm/internal/manifest"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate agpm.toml (and agpm.private.toml, if present) without resolving",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, conflicts, _, err := manifest.LoadWithPrivate(projectDir)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, c := range conflicts {
				fmt.Fprintf(w, "note: private overlay shadows %s.%s\n", c.Section, c.Key)
			}

			if errs := m.Validate(); len(errs) > 0 {
				f := agpmerrors.NewFormatter(cmd.ErrOrStderr(), noColor)
				for _, e := range errs {
					fmt.Fprint(cmd.ErrOrStderr(), f.Format(e))
				}
				return fmt.Errorf("manifest is invalid: %d error(s)", len(errs))
			}

			fmt.Fprintln(w, "manifest is valid")
			return nil
		},
	}
	return cmd
}
