package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conductor/internal/dispatch"
	"github.com/ShayCichocki/conductor/internal/responder"
	"github.com/ShayCichocki/conductor/pkg/models"
)

var (
	processUserID   string
	processUserName string
	processRole     string
	processTeam     string
	processCompany  string
	processForce    string
)

var processCmd = &cobra.Command{
	Use:   "process <request>",
	Short: "Process one user request",
	Long: `Classify a request and either start the matched workflow or
answer it directly with a specialist response.

Examples:
  conductor process "Create a project plan for the Q3 launch"
  conductor process "How are you doing today?"
  conductor process --force-workflow research_analysis "Kubernetes operators"`,
	Args: cobra.ArbitraryArgs,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processUserID, "user", "local", "User id making the request")
	processCmd.Flags().StringVar(&processUserName, "name", "", "Display name of the requester")
	processCmd.Flags().StringVar(&processRole, "role", "", "Requester's role")
	processCmd.Flags().StringVar(&processTeam, "team", "", "Requester's team")
	processCmd.Flags().StringVar(&processCompany, "company", "", "Company id for directory lookups")
	processCmd.Flags().StringVar(&processForce, "force-workflow", "", "Bypass trigger evaluation and start this workflow type")
}

func runProcess(cmd *cobra.Command, args []string) error {
	input := strings.Join(args, " ")
	if input == "" {
		// No argument: read the request from stdin (pipe-friendly).
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read request from stdin: %w", err)
		}
		input = strings.TrimSpace(string(raw))
	}
	if input == "" {
		return fmt.Errorf("no request given")
	}

	var forced *models.WorkflowType
	if processForce != "" {
		typ := models.WorkflowType(processForce)
		if !typ.Valid() {
			return fmt.Errorf("unknown workflow type %q", processForce)
		}
		forced = &typ
	}

	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.dispatcher.ProcessRequest(cmd.Context(), dispatch.Request{
		Input: input,
		User: responder.RequestContext{
			UserID:    processUserID,
			UserName:  processUserName,
			Role:      processRole,
			Team:      processTeam,
			CompanyID: processCompany,
		},
		ForceWorkflow: forced,
	})
	if err != nil {
		return err
	}

	dim := color.New(color.Faint)
	dim.Printf("intent: %s (%.2f, %s complexity, ~%d steps)\n",
		result.Intent.PrimaryIntent, result.Intent.Confidence,
		result.Intent.Complexity, result.Intent.EstimatedSteps)
	dim.Printf("routing: %s\n", result.Decision.Reason)

	if result.ResponseType == dispatch.ResponseWorkflow {
		green := color.New(color.FgGreen)
		green.Printf("Started %s workflow\n", result.Instance.Type)
		fmt.Printf("  workflow: %s\n", result.Instance.ShortID())
		fmt.Printf("  thread:   %s\n", result.Instance.ThreadID)
		fmt.Printf("  status:   %s\n", result.Instance.Status)
		if in, out := a.client.Tracker().Total(); in+out > 0 {
			dim.Printf("tokens: %d in / %d out\n", in, out)
		}
		return nil
	}

	fmt.Println(result.Text)
	if in, out := a.client.Tracker().Total(); in+out > 0 {
		dim.Printf("tokens: %d in / %d out\n", in, out)
	}
	return nil
}
