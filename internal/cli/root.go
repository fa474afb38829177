// Package cli implements the command-line interface for singq.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/patrikvak/singq/internal/config"
	"github.com/patrikvak/singq/internal/reorder"
	"github.com/patrikvak/singq/internal/store"
	"github.com/spf13/cobra"
)

var configPath string

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config  *config.Config
	Store   *store.Store
	Service *reorder.Service
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
}

// initContext initializes config and store
func initContext() *cmdContext {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitError("%v", err)
	}

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		exitError("failed to open store: %v", err)
	}

	if err := st.Initialize(); err != nil {
		st.Close()
		exitError("failed to initialize store: %v", err)
	}

	return &cmdContext{Config: cfg, Store: st}
}

// initServiceContext initializes config, store, and the reorder service.
// CLI invocations run against the local database without a broadcaster.
func initServiceContext() *cmdContext {
	c := initContext()

	plans := reorder.NewDualPlanStore(c.Store, slog.Default())
	c.Service = reorder.NewService(c.Store, plans, c.Store, nil,
		reorder.NewFairnessOptimizer(c.Config.Scoring()),
		reorder.Config{PlanTTL: c.Config.PlanTTL(), Defaults: c.Config.Constraints()},
		slog.Default())

	return c
}

var rootCmd = &cobra.Command{
	Use:   "singq",
	Short: "Karaoke queue fairness engine",
	Long: `singq manages karaoke signup queues and computes fairness-based
reorder proposals. Previews are computed against a snapshot of the queue
and applied only if the queue has not changed in the meantime.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "singq.toml", "Path to the configuration file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(serveCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// shortID returns first 8 characters of an ID
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
