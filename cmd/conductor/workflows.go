package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conductor/pkg/models"
)

var (
	workflowsListUser     string
	workflowsContinueText string
	workflowsStatusData   bool
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "Inspect and manage workflow instances",
}

var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflow instances for a user",
	RunE:  runWorkflowsList,
}

var workflowsStatusCmd = &cobra.Command{
	Use:   "status <thread-id>",
	Short: "Show one workflow's progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowsStatus,
}

var workflowsCancelCmd = &cobra.Command{
	Use:   "cancel <thread-id>",
	Short: "Cancel a workflow",
	Long: `Mark a workflow cancelled. A running instance stops before its
next step; cancelling an already-finished workflow does nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflowsCancel,
}

var workflowsContinueCmd = &cobra.Command{
	Use:   "continue <thread-id>",
	Short: "Resume a paused or failed workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowsContinue,
}

func init() {
	workflowsListCmd.Flags().StringVar(&workflowsListUser, "user", "local", "User id to list workflows for")
	workflowsStatusCmd.Flags().BoolVar(&workflowsStatusData, "data", false, "Print the workflow state payload as JSON")
	workflowsContinueCmd.Flags().StringVar(&workflowsContinueText, "input", "", "Additional input folded into the workflow state")

	workflowsCmd.AddCommand(workflowsListCmd)
	workflowsCmd.AddCommand(workflowsStatusCmd)
	workflowsCmd.AddCommand(workflowsCancelCmd)
	workflowsCmd.AddCommand(workflowsContinueCmd)
}

func runWorkflowsList(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	instances, err := a.sessions.ListWorkflows(workflowsListUser)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		fmt.Printf("No workflows for user %q.\n", workflowsListUser)
		return nil
	}

	fmt.Printf("%-10s %-22s %-10s %-24s %-9s %-9s %s\n",
		"ID", "TYPE", "STATUS", "CURRENT STEP", "PROGRESS", "CONTINUE", "UPDATED")
	for i := range instances {
		st := &instances[i]
		inst := &st.Instance
		fmt.Printf("%-10s %-22s %-10s %-24s %-9s %-9s %s\n",
			inst.ShortID(), inst.Type, colorStatus(inst.Status),
			inst.CurrentStep, fmt.Sprintf("%d%%", st.Progress),
			yesNo(st.CanContinue), formatAge(inst.UpdatedAt))
	}
	return nil
}

func runWorkflowsStatus(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.sessions.GetWorkflowStatus(args[0])
	if err != nil {
		return err
	}
	inst := &st.Instance

	fmt.Printf("Workflow %s (%s)\n", inst.ShortID(), inst.Type)
	fmt.Printf("  thread:   %s\n", inst.ThreadID)
	fmt.Printf("  status:   %s\n", colorStatus(inst.Status))
	fmt.Printf("  step:     %s\n", inst.CurrentStep)
	if st.TotalEstimatedSteps > 0 {
		fmt.Printf("  progress: %d%% of %d steps\n", st.Progress, st.TotalEstimatedSteps)
	} else {
		fmt.Printf("  progress: %d%%\n", st.Progress)
	}
	fmt.Printf("  can continue: %s\n", yesNo(st.CanContinue))
	if len(inst.CompletedSteps) > 0 {
		fmt.Printf("  completed: %s\n", strings.Join(inst.CompletedSteps, " -> "))
	}
	if inst.LastError != "" {
		fmt.Printf("  last error: %s\n", inst.LastError)
	}

	if workflowsStatusData {
		raw, err := a.sessions.GetWorkflowData(args[0])
		if err != nil {
			return err
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, raw, "", "  "); err != nil {
			pretty.Write(raw)
		}
		fmt.Println(pretty.String())
	}
	return nil
}

func runWorkflowsCancel(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.sessions.CancelWorkflow(args[0]); err != nil {
		return err
	}
	fmt.Printf("Cancelled workflow on thread %s\n", args[0])
	return nil
}

func runWorkflowsContinue(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var newInput map[string]any
	if workflowsContinueText != "" {
		newInput = map[string]any{"input": workflowsContinueText}
	}

	inst, err := a.sessions.ContinueWorkflow(cmd.Context(), args[0], newInput)
	if err != nil {
		return err
	}
	fmt.Printf("Workflow %s is %s (step %s)\n", inst.ShortID(), colorStatus(inst.Status), inst.CurrentStep)
	return nil
}

func colorStatus(s models.WorkflowStatus) string {
	switch s {
	case models.StatusCompleted:
		return color.GreenString(string(s))
	case models.StatusFailed:
		return color.RedString(string(s))
	case models.StatusRunning:
		return color.CyanString(string(s))
	case models.StatusCancelled:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
