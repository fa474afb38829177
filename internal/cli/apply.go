package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/patrikvak/singq/internal/reorder"
	"github.com/spf13/cobra"
)

var (
	applyVersion string
	applyActor   string
)

var applyCmd = &cobra.Command{
	Use:   "apply <event-id> <plan-id>",
	Short: "Commit a previously previewed reorder plan",
	Long: `Commit a plan produced by 'singq preview'. The apply is rejected if the
queue changed since the preview, if the plan expired, or if the plan
carries blocking warnings.`,
	Args: cobra.ExactArgs(2),
	Run:  runApply,
}

func init() {
	f := applyCmd.Flags()
	f.StringVar(&applyVersion, "based-on", "", "Queue version the plan was previewed against (defaults to the plan's own)")
	f.StringVar(&applyActor, "actor", "", "Operator name recorded in the audit log")
}

func runApply(cmd *cobra.Command, args []string) {
	eventID := parseEventID(args[0])
	planID := args[1]
	c := initServiceContext()
	defer c.Close()

	basedOn := applyVersion
	if basedOn == "" {
		plan, err := c.Store.GetPlan(planID, time.Now())
		if err != nil {
			exitError("%v", err)
		}
		if plan == nil {
			exitError("plan %s not found or expired; run 'singq preview' again", shortID(planID))
		}
		basedOn = plan.BasedOnVersion
	}

	result, err := c.Service.Apply(context.Background(), reorder.ApplyRequest{
		EventID:        eventID,
		PlanID:         planID,
		BasedOnVersion: basedOn,
		Actor:          applyActor,
	})
	switch {
	case errors.Is(err, reorder.ErrPlanNotFound):
		exitError("plan %s not found or expired; run 'singq preview' again", shortID(planID))
	case errors.Is(err, reorder.ErrVersionConflict):
		exitError("queue has changed since the preview; run 'singq preview' again")
	case err != nil:
		exitError("%v", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("Applied %d moves\n", result.MoveCount)
	fmt.Printf("Queue version is now %s\n", shortID(result.AppliedVersion))
}
