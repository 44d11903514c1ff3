package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), versionTemplate())
	},
}

func versionTemplate() string {
	if commit != "none" && commit != "" {
		return fmt.Sprintf("hangar-bridge %s\n  commit: %s\n  built:  %s\n", version, commit, date)
	}
	return fmt.Sprintf("hangar-bridge %s\n", version)
}
