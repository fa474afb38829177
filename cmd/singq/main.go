// Command singq is the karaoke queue fairness CLI.
package main

import (
	"os"

	"github.com/patrikvak/singq/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
