package main

import (
	"fmt"

	"github.com/grit-scm/grit/pkg/object"
	"github.com/grit-scm/grit/pkg/repo"
	"github.com/spf13/cobra"
)

func newLsTreeCmd() *cobra.Command {
	var nameOnly bool

	cmd := &cobra.Command{
		Use:   "ls-tree <tree>",
		Short: "List the entries of a tree object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			h, err := r.Store.ResolvePrefix(args[0])
			if err != nil {
				return err
			}
			tree, err := r.Store.ReadTree(h)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, entry := range tree.Entries {
				if nameOnly {
					fmt.Fprintln(out, entry.Name)
					continue
				}
				entryType := object.TypeBlob
				mode := entry.Mode
				if entry.IsDir() {
					entryType = object.TypeTree
					mode = "0" + mode
				}
				fmt.Fprintf(out, "%s %s %s\t%s\n", mode, entryType, entry.Target, entry.Name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&nameOnly, "name-only", false, "print only entry names")
	return cmd
}
