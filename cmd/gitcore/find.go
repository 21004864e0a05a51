package main

import (
	"fmt"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/forgectl/gitcore/hash"
	"github.com/forgectl/gitcore/store"
)

func newFindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find OBJECT",
		Short: "print an object's kind and size, or its raw content with --print",
		Args:  cobra.ExactArgs(1),
	}

	printContent := cmd.Flags().BoolP("print", "p", false, "write the object's raw content to stdout instead of its kind and size")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runFind(cmd, gitDir(cmd), args[0], *printContent)
	}
	return cmd
}

func runFind(cmd *cobra.Command, dir, objectName string, printContent bool) error {
	id, err := hash.FromHex(objectName)
	if err != nil {
		return fmt.Errorf("gitcore: %q is not a valid object id: %w", objectName, err)
	}

	fs := osfs.New(dir)
	db, err := store.Open(fs, "objects")
	if err != nil {
		return err
	}
	defer db.Close()

	kind, content, err := db.Get(id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if printContent {
		_, err := out.Write(content)
		return err
	}
	_, err = fmt.Fprintf(out, "%s %d\n", kind, len(content))
	return err
}
