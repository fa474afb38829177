package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/patrikvak/singq/internal/models"
	"github.com/spf13/cobra"
)

var (
	queueAddVIP    bool
	queueAddMature bool
	queueBreakOff  bool
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and edit an event's signup queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list <event-id>",
	Short: "Show the eligible queue in position order",
	Args:  cobra.ExactArgs(1),
	Run:   runQueueList,
}

var queueAddCmd = &cobra.Command{
	Use:   "add <event-id> <singer>",
	Short: "Append a singer to the end of the queue",
	Args:  cobra.ExactArgs(2),
	Run:   runQueueAdd,
}

var queueSkipCmd = &cobra.Command{
	Use:   "skip <entry-id>",
	Short: "Skip an entry, removing it from the eligible queue",
	Args:  cobra.ExactArgs(1),
	Run:   runQueueSkip,
}

var queueSungCmd = &cobra.Command{
	Use:   "sung <entry-id>",
	Short: "Mark an entry as performed",
	Args:  cobra.ExactArgs(1),
	Run:   runQueueSung,
}

var queueBreakCmd = &cobra.Command{
	Use:   "break <entry-id>",
	Short: "Mark a singer as on break (or back, with --off)",
	Args:  cobra.ExactArgs(1),
	Run:   runQueueBreak,
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueSkipCmd)
	queueCmd.AddCommand(queueSungCmd)
	queueCmd.AddCommand(queueBreakCmd)

	queueAddCmd.Flags().BoolVar(&queueAddVIP, "vip", false, "Mark the entry as VIP")
	queueAddCmd.Flags().BoolVar(&queueAddMature, "mature", false, "Mark the entry as mature content")
	queueBreakCmd.Flags().BoolVar(&queueBreakOff, "off", false, "Clear the break flag instead of setting it")
}

func parseEventID(arg string) int64 {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		exitError("invalid event id %q", arg)
	}
	return id
}

func runQueueList(cmd *cobra.Command, args []string) {
	eventID := parseEventID(args[0])
	c := initServiceContext()
	defer c.Close()

	view, err := c.Service.Queue(context.Background(), eventID)
	if err != nil {
		exitError("%v", err)
	}

	if len(view.Entries) == 0 {
		fmt.Println("Queue is empty")
		return
	}

	fmt.Printf("Event %d, version %s\n\n", eventID, shortID(view.Version))

	yellow := color.New(color.FgYellow)
	magenta := color.New(color.FgMagenta)

	for i, e := range view.Entries {
		flags := ""
		if e.VIP {
			flags += " [vip]"
		}
		if e.OnBreak {
			flags += " [break]"
		}
		if e.Mature {
			flags += " [mature]"
		}
		line := fmt.Sprintf("  %2d  %-8s  %s%s", i, shortID(e.ID), e.Singer, flags)
		switch {
		case e.OnBreak:
			yellow.Println(line)
		case e.VIP:
			magenta.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

func runQueueAdd(cmd *cobra.Command, args []string) {
	eventID := parseEventID(args[0])
	c := initContext()
	defer c.Close()

	entries, err := c.Store.EligibleEntries(eventID)
	if err != nil {
		exitError("%v", err)
	}

	now := time.Now()
	entry := &models.QueueEntry{
		ID:        uuid.New().String(),
		EventID:   eventID,
		Singer:    args[1],
		VIP:       queueAddVIP,
		Mature:    queueAddMature,
		Active:    true,
		Position:  len(entries),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.Store.AddEntry(entry); err != nil {
		exitError("%v", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("Added %s at position %d (entry %s)\n", entry.Singer, entry.Position, shortID(entry.ID))
}

func runQueueSkip(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	if err := c.Store.SkipEntry(args[0], time.Now()); err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Skipped entry %s\n", shortID(args[0]))
}

func runQueueSung(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	if err := c.Store.MarkSung(args[0], time.Now()); err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Marked entry %s as sung\n", shortID(args[0]))
}

func runQueueBreak(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	if err := c.Store.SetBreak(args[0], !queueBreakOff, time.Now()); err != nil {
		exitError("%v", err)
	}
	if queueBreakOff {
		fmt.Printf("Entry %s is back from break\n", shortID(args[0]))
	} else {
		fmt.Printf("Entry %s is on break\n", shortID(args[0]))
	}
}
