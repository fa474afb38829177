package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/patrikvak/singq/internal/models"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit <event-id>",
	Short: "Show the reorder audit trail for an event",
	Args:  cobra.ExactArgs(1),
	Run:   runAudit,
}

func runAudit(cmd *cobra.Command, args []string) {
	eventID := parseEventID(args[0])
	c := initServiceContext()
	defer c.Close()

	records, err := c.Service.Audit(context.Background(), eventID)
	if err != nil {
		exitError("%v", err)
	}

	if len(records) == 0 {
		fmt.Println("No reorder activity recorded")
		return
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	for _, rec := range records {
		ts := rec.CreatedAt.Format("2006-01-02 15:04:05")
		actor := rec.Actor
		if actor == "" {
			actor = "-"
		}
		plan := rec.PlanID
		if plan == "" {
			plan = "-"
		} else {
			plan = shortID(plan)
		}

		line := fmt.Sprintf("  %s  %-7s  plan %-8s  %s", ts, rec.Action, plan, actor)
		if rec.Action == models.ActionApply {
			green.Println(line)
		} else {
			cyan.Println(line)
		}
	}
}
