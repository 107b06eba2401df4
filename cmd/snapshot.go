package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/patrikhermansson/redis-hnsw/internal/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export or import indices of the configured store",
	Long: `snapshot works on the store directly. Stop the server first when it uses
the same pebble data directory.`,
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export <file> [index...]",
	Short: "Write indices to a compressed snapshot file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		stats, err := snapshot.Export(s, f, args[1:]...)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d indices (%d keys) to %s\n", stats.Indices, stats.Keys, args[0])
		return nil
	},
}

var snapshotImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Restore indices from a snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		stats, err := snapshot.Import(s, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d indices (%d keys) from %s\n", stats.Indices, stats.Keys, args[0])
		return nil
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotExportCmd, snapshotImportCmd)
	rootCmd.AddCommand(snapshotCmd)
}
