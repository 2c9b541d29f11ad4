// Command orbit runs, tests and inspects MVI state containers.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/orbit/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
