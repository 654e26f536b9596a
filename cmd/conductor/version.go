package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conductor/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("conductor version %s", version.Get())
		if rev := version.Revision(); rev != "" {
			fmt.Printf(" (%s)", rev)
		}
		fmt.Println()
	},
}
