// Command docagg compiles aggregation pipelines into server-side programs
// and runs them against a local document database emulator.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/docagg/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
