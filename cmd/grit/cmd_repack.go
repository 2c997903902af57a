package main

import (
	"fmt"

	"github.com/grit-scm/grit/pkg/repo"
	"github.com/spf13/cobra"
)

func newRepackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repack",
		Short: "Pack loose objects into a single pack file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			summary, err := r.Store.Repack()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if summary.PackedObjects == 0 {
				fmt.Fprintln(out, "nothing to pack")
				return nil
			}
			fmt.Fprintf(out, "packed %d objects into %s\n", summary.PackedObjects, summary.PackFile)
			return nil
		},
	}
}
