package main

import (
	"fmt"

	"github.com/grit-scm/grit/pkg/remote"
	"github.com/spf13/cobra"
)

func newLsRemoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls-remote <remote-url>",
		Short: "List references advertised by a remote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoint, err := remote.ParseEndpoint(args[0])
			if err != nil {
				return err
			}

			client := remote.NewClient(endpoint)
			adv, err := client.DiscoverRefs(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, ref := range adv.Refs {
				fmt.Fprintf(out, "%s\t%s\n", ref.Hash, ref.Name)
			}
			return nil
		},
	}
}
