package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dosanma1/octobuild/internal/archive"
)

var unpackCaseInsensitive bool

var unpackCmd = &cobra.Command{
	Use:   "unpack <archive.tar.gz> <destination>",
	Short: "Extract a tar.gz archive",
	Long: `Extract a tar.gz archive into a directory.

With --case-insensitive (the default on Windows) existing files whose names
differ from an archive entry only by case are removed first, so the casing
in the archive wins.`,
	Args: cobra.ExactArgs(2),
	RunE: runUnpack,
}

func init() {
	rootCmd.AddCommand(unpackCmd)
	unpackCmd.Flags().BoolVar(&unpackCaseInsensitive, "case-insensitive", archive.DefaultUnpackOptions().CaseInsensitive, "Replace files whose names differ only by case")
}

func runUnpack(cmd *cobra.Command, args []string) error {
	opts := archive.UnpackOptions{CaseInsensitive: unpackCaseInsensitive}
	if err := archive.Unpack(args[0], args[1], opts); err != nil {
		return fmt.Errorf("failed to unpack %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "📦 Unpacked %s to %s\n", args[0], args[1])
	return nil
}
