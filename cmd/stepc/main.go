// Command stepc compiles and runs per-step array update models.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/stepc/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
