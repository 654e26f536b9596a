package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Request router and workflow engine",
	Long: `Conductor classifies user requests, routes multi-step work to
durable workflow graphs, and answers everything else with a direct
specialist response.

Core capabilities:
- Classifies intent, entities, and complexity per request
- Scores trigger tables to pick a workflow or a direct response
- Runs checkpointed workflow graphs with loops and parallel fan-out
- Resumes interrupted workflows from their last completed step`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(workflowsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
