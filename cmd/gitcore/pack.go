package main

import (
	"fmt"
	"io"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/forgectl/gitcore/format/packfile"
	"github.com/forgectl/gitcore/hash"
	"github.com/forgectl/gitcore/packbuilder"
	"github.com/forgectl/gitcore/store"
)

func newPackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack",
		Short: "pack creation, indexing and verification",
	}

	cmd.AddCommand(newPackCreateCmd())
	cmd.AddCommand(newPackIndexCmd())
	cmd.AddCommand(newPackVerifyCmd())
	cmd.AddCommand(newPackReceiveCmd())
	return cmd
}

func newPackCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create TIP [TIP...]",
		Short: "walk history from the given tip ids and write a pack containing everything reachable",
		Args:  cobra.MinimumNArgs(1),
	}

	name := cmd.Flags().String("name", "pack-create", "base name for the .pack/.idx files")
	haveFlags := cmd.Flags().StringSlice("have", nil, "object id already present on the receiving end; excludes everything reachable only through it")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runPackCreate(cmd, gitDir(cmd), args, *haveFlags, *name)
	}
	return cmd
}

func runPackCreate(cmd *cobra.Command, dir string, tipArgs, haveArgs []string, name string) error {
	tips, err := parseIDs(tipArgs)
	if err != nil {
		return err
	}
	haves, err := parseIDs(haveArgs)
	if err != nil {
		return err
	}

	fs := osfs.New(dir)
	db, err := store.Open(fs, "objects")
	if err != nil {
		return err
	}
	defer db.Close()

	counts, err := packbuilder.WalkTips(db, tips, haves)
	if err != nil {
		return err
	}

	id, err := buildPackFiles(fs, "objects", name, db, counts)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "gitcore: wrote %d objects, pack %s\n", len(counts), id)
	return nil
}

func parseIDs(args []string) ([]hash.ID, error) {
	ids := make([]hash.ID, 0, len(args))
	for _, a := range args {
		id, err := hash.FromHex(a)
		if err != nil {
			return nil, fmt.Errorf("gitcore: %q is not a valid object id: %w", a, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newPackIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index PACKFILE",
		Short: "write the .idx matching an existing .pack file",
		Args:  cobra.ExactArgs(1),
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runPackIndex(gitDir(cmd), args[0])
	}
	return cmd
}

func runPackIndex(dir, packPath string) error {
	fs := osfs.New(dir)

	checksum, err := packTrailerChecksum(fs, packPath)
	if err != nil {
		return err
	}

	idxPath := packPath[:len(packPath)-len(".pack")] + ".idx"
	return indexPackFile(fs, packPath, idxPath, checksum)
}

// packTrailerChecksum reads the last 20 bytes of a pack file, the
// trailer SHA-1 computed over everything preceding it.
func packTrailerChecksum(fs billy.Filesystem, packPath string) (hash.ID, error) {
	f, err := fs.Open(packPath)
	if err != nil {
		return hash.Zero, err
	}
	defer f.Close()

	info, err := fs.Stat(packPath)
	if err != nil {
		return hash.Zero, err
	}
	if info.Size() < hash.Size {
		return hash.Zero, fmt.Errorf("gitcore: %s is too short to be a pack file", packPath)
	}

	if _, err := f.Seek(-hash.Size, io.SeekEnd); err != nil {
		return hash.Zero, err
	}
	var trailer [hash.Size]byte
	if _, err := io.ReadFull(f, trailer[:]); err != nil {
		return hash.Zero, err
	}
	return hash.FromBytes(trailer[:]), nil
}

func newPackVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify PACKFILE",
		Short: "walk every object in a pack, resolving deltas, and report statistics",
		Args:  cobra.ExactArgs(1),
	}

	lessTime := cmd.Flags().Bool("less-time", false, "keep every resolved object cached for the whole pass, trading memory for CPU")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runPackVerify(cmd, gitDir(cmd), args[0], *lessTime)
	}
	return cmd
}

func runPackVerify(cmd *cobra.Command, dir, packPath string, lessTime bool) error {
	fs := osfs.New(dir)
	f, err := fs.Open(packPath)
	if err != nil {
		return err
	}
	defer f.Close()

	mode := packfile.VerifyLessMemory
	if lessTime {
		mode = packfile.VerifyLessTime
	}

	stats, err := packfile.Verify(f, mode)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "objects: %d (commits %d, trees %d, blobs %d, tags %d, deltas %d)\n",
		stats.ObjectCount, stats.CommitCount, stats.TreeCount, stats.BlobCount, stats.TagCount, stats.DeltaCount)
	fmt.Fprintf(out, "inflated bytes: %d\n", stats.TotalInflated)
	return nil
}

func newPackReceiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receive",
		Short: "read a pack from stdin, verify it, write it and its index under objects/pack",
		Args:  cobra.NoArgs,
	}

	name := cmd.Flags().String("name", "pack-received", "base name for the .pack/.idx files")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runPackReceive(cmd, gitDir(cmd), *name)
	}
	return cmd
}

func runPackReceive(cmd *cobra.Command, dir, name string) error {
	fs := osfs.New(dir)
	if err := fs.MkdirAll(fs.Join("objects", "pack"), 0o755); err != nil {
		return err
	}

	packPath := fs.Join("objects", "pack", name+".pack")
	idxPath := fs.Join("objects", "pack", name+".idx")

	out, err := fs.Create(packPath)
	if err != nil {
		return err
	}
	n, copyErr := io.Copy(out, cmd.InOrStdin())
	if closeErr := out.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return fmt.Errorf("gitcore: receiving pack: %w", copyErr)
	}

	f, err := fs.Open(packPath)
	if err != nil {
		return err
	}
	stats, verifyErr := packfile.Verify(f, packfile.VerifyLessMemory)
	_ = f.Close()
	if verifyErr != nil {
		return fmt.Errorf("gitcore: received pack failed verification: %w", verifyErr)
	}

	checksum, err := packTrailerChecksum(fs, packPath)
	if err != nil {
		return err
	}
	if err := indexPackFile(fs, packPath, idxPath, checksum); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "gitcore: received %d bytes, %d objects, indexed as %s\n", n, stats.ObjectCount, name)
	return nil
}
