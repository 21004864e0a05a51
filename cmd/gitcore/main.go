// Command gitcore is a thin porcelain front-end over the library
// packages: it wires store, packbuilder and the pack/index formats
// together behind a handful of subcommands, but holds no logic of its own beyond
// argument parsing and output formatting.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gitcore",
		Short:         "object/pack/ref engine",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().String("git-dir", ".", "path to the repository's git directory")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newFindCmd())
	cmd.AddCommand(newOrganizeCmd())
	cmd.AddCommand(newPackCmd())

	return cmd
}

func gitDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("git-dir")
	return dir
}
