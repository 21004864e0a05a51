package main

import (
	"fmt"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/forgectl/gitcore/packbuilder"
	"github.com/forgectl/gitcore/store"
)

func newOrganizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "organize",
		Short: "consolidate every loose and packed object into one new pack, removing the loose copies",
		Args:  cobra.NoArgs,
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runOrganize(cmd, gitDir(cmd))
	}
	return cmd
}

func runOrganize(cmd *cobra.Command, dir string) error {
	fs := osfs.New(dir)

	db, err := store.Open(fs, "objects")
	if err != nil {
		return err
	}
	defer db.Close()

	ids, err := db.IDs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "gitcore: nothing to organize")
		return nil
	}

	counts := make([]packbuilder.Count, 0, len(ids))
	for _, id := range ids {
		kind, _, err := db.Get(id)
		if err != nil {
			return fmt.Errorf("gitcore: reading %s: %w", id, err)
		}
		counts = append(counts, packbuilder.Count{ID: id, Kind: kind})
	}

	packName := fmt.Sprintf("pack-organize-%d", len(counts))
	if _, err := buildPackFiles(fs, "objects", packName, db, counts); err != nil {
		return err
	}

	loose := store.NewLoose(fs, "objects")
	for _, id := range ids {
		if err := loose.Remove(id); err != nil {
			return fmt.Errorf("gitcore: removing loose object %s: %w", id, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "gitcore: organized %d objects into %s\n", len(counts), packName)
	return nil
}
