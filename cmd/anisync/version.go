package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Guilhem-Bonnet/anisync/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Version du binaire",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(os.Stdout, buildinfo.Current())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
