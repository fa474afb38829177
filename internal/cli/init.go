package cli

import (
	"fmt"
	"os"

	"github.com/patrikvak/singq/internal/config"
	"github.com/patrikvak/singq/internal/store"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default configuration and database",
	Long: `Write a default singq.toml next to the current directory and create
the SQLite database it points at. Existing files are left alone.`,
	Run: runInit,
}

func runInit(cmd *cobra.Command, args []string) {
	if _, err := os.Stat(configPath); err == nil {
		exitError("config file %s already exists", configPath)
	}

	cfg := config.Default()
	if err := cfg.Save(configPath); err != nil {
		exitError("%v", err)
	}

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		exitError("failed to create store: %v", err)
	}
	defer st.Close()

	if err := st.Initialize(); err != nil {
		exitError("failed to initialize store: %v", err)
	}

	fmt.Printf("Initialized singq in %s (database: %s)\n", configPath, cfg.Store.Path)
}
