package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/patrikvak/singq/internal/reorder"
	"github.com/spf13/cobra"
)

var (
	previewMaturePolicy string
	previewHorizon      int
	previewMovementCap  int
	previewActor        string
)

var previewCmd = &cobra.Command{
	Use:   "preview <event-id>",
	Short: "Compute a fairness reorder proposal",
	Long: `Compute a reorder proposal against the current queue. The proposal is
stored under a plan id and can be committed with 'singq apply' as long
as the queue does not change and the plan has not expired.`,
	Args: cobra.ExactArgs(1),
	Run:  runPreview,
}

func init() {
	f := previewCmd.Flags()
	f.StringVar(&previewMaturePolicy, "mature-policy", "", "Mature content policy (allow|defer)")
	f.IntVar(&previewHorizon, "horizon", -1, "Only reorder the first N movable entries")
	f.IntVar(&previewMovementCap, "movement-cap", -1, "Limit how far any entry may move")
	f.StringVar(&previewActor, "actor", "", "Operator name recorded in the audit log")
}

func runPreview(cmd *cobra.Command, args []string) {
	eventID := parseEventID(args[0])
	c := initServiceContext()
	defer c.Close()

	req := reorder.PreviewRequest{
		EventID:      eventID,
		MaturePolicy: reorder.MaturePolicy(previewMaturePolicy),
		Actor:        previewActor,
	}
	if previewHorizon >= 0 {
		req.Horizon = &previewHorizon
	}
	if previewMovementCap >= 0 {
		req.MovementCap = &previewMovementCap
	}

	result, err := c.Service.Preview(context.Background(), req)
	if err != nil {
		exitError("%v", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)
	cyan := color.New(color.FgCyan)

	fmt.Printf("Plan %s (based on version %s)\n", result.PlanID, shortID(result.BasedOnVersion))
	fmt.Printf("Expires at %s\n\n", result.ExpiresAt.Format("15:04:05"))

	for _, item := range result.Items {
		marker := " "
		switch {
		case item.IsLocked:
			marker = "*"
		case item.Movement > 0:
			marker = "^"
		case item.Movement < 0:
			marker = "v"
		}
		line := fmt.Sprintf("  %s %2d <- %2d  %s", marker, item.ProposedIndex, item.OriginalIndex, item.Singer)
		switch {
		case item.Movement > 0:
			green.Println(line)
		case item.Movement < 0:
			yellow.Println(line)
		default:
			fmt.Println(line)
		}
		for _, r := range item.Rationale {
			cyan.Printf("        %s\n", r)
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Println()
		for _, w := range result.Warnings {
			if w.BlocksApproval {
				red.Printf("  blocking: %s\n", w.Message)
			} else {
				yellow.Printf("  warning:  %s\n", w.Message)
			}
		}
	}

	fmt.Printf("\n%d moves, fairness %.2f -> %.2f\n",
		result.Summary.MoveCount, result.Summary.FairnessBefore, result.Summary.FairnessAfter)

	if result.Summary.MoveCount == 0 {
		fmt.Println("Queue is already in fairness order.")
		return
	}
	fmt.Printf("\nUse 'singq apply %d %s' to commit this plan.\n", eventID, result.PlanID)
}
