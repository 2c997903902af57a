package main

import (
	"fmt"
	"time"

	"github.com/grit-scm/grit/pkg/object"
	"github.com/grit-scm/grit/pkg/repo"
	"github.com/spf13/cobra"
)

func newCommitTreeCmd() *cobra.Command {
	var parents []string
	var message string

	cmd := &cobra.Command{
		Use:   "commit-tree <tree>",
		Short: "Create a commit object for a tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("commit message is required (-m)")
			}

			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			treeHash, err := r.Store.ResolvePrefix(args[0])
			if err != nil {
				return err
			}
			if _, err := r.Store.ReadTree(treeHash); err != nil {
				return fmt.Errorf("tree %s: %w", treeHash, err)
			}

			var parentHashes []object.Hash
			for _, p := range parents {
				ph, err := r.Store.ResolvePrefix(p)
				if err != nil {
					return fmt.Errorf("parent %s: %w", p, err)
				}
				parentHashes = append(parentHashes, ph)
			}

			name, email, err := r.Identity()
			if err != nil {
				return err
			}

			now := time.Now()
			sig := object.Signature{
				Name:     name,
				Email:    email,
				When:     now.Unix(),
				Timezone: now.Format("-0700"),
			}

			h, err := r.Store.WriteCommit(&object.CommitObj{
				TreeHash:  treeHash,
				Parents:   parentHashes,
				Author:    sig,
				Committer: sig,
				Message:   message,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&parents, "parent", "p", nil, "parent commit (repeatable)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	return cmd
}
