package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as TOML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cfg.Write(cmd.OutOrStdout())
	},
}

var indicesCmd = &cobra.Command{
	Use:   "indices",
	Short: "List the indices in the configured store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()
		names, err := reg.Indices()
		if err != nil {
			return err
		}
		for _, name := range names {
			info, err := reg.GetIndex(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d nodes\tdim=%d\tm=%d\tef=%d\t%s\n",
				name, info.NodeCount, info.Dimension, info.M, info.EfConstruction, info.Metric)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd, indicesCmd)
}
