package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grit-scm/grit/pkg/repo"
	"github.com/spf13/cobra"
)

func newCloneCmd() *cobra.Command {
	var branch string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "clone <remote-url> [directory]",
		Short: "Clone a repository over smart HTTP",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			dest := ""
			if len(args) == 2 {
				dest = args[1]
			}

			if dest != "" {
				abs, err := filepath.Abs(dest)
				if err != nil {
					return fmt.Errorf("resolve destination: %w", err)
				}
				if err := ensureEmptyDir(abs); err != nil {
					return err
				}
				dest = abs
			}

			opts := repo.CloneOptions{Branch: strings.TrimSpace(branch)}
			if !quiet {
				opts.Progress = func(msg string) {
					fmt.Fprintln(cmd.ErrOrStderr(), msg)
				}
			}

			r, result, err := repo.Clone(cmd.Context(), source, dest, opts)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "cloned %s into %s (%d objects, branch %s)\n",
				source, r.RootDir, result.ObjectsWritten, result.Branch)
			return nil
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "", "branch to fetch instead of the remote default")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress server progress output")
	return cmd
}

// ensureEmptyDir accepts a missing directory or an existing empty one.
func ensureEmptyDir(path string) error {
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check destination: %w", err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("destination %s already exists and is not empty", path)
	}
	return nil
}
