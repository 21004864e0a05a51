package main

import (
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "create an empty object/ref layout at --git-dir",
		Args:  cobra.NoArgs,
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runInit(gitDir(cmd))
	}
	return cmd
}

func runInit(dir string) error {
	fs := osfs.New(dir)

	for _, d := range []string{
		"objects/pack",
		"objects/info",
		"refs/heads",
		"refs/tags",
		"logs",
	} {
		if err := fs.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}

	f, err := fs.Create("HEAD")
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write([]byte("ref: refs/heads/main\n"))
	return err
}
