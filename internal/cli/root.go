// Package cli implements the shelter-watch command line.
package cli

import (
	"github.com/spf13/cobra"
)

func Execute() error {
	return NewRoot().Execute()
}

func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "shelter-watch",
		Short:         "Follow shelter alerts for one area from a terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		WatchCmd(),
		AreasCmd(),
	)
	return root
}
