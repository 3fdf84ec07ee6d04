// Command ormsql translates entity queries over a CUE domain model into SQL.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/ormsql/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		// Formatted results and error payloads go to stdout; stderr gets the
		// one-line cause for scripts that only check the exit status.
		fmt.Fprintln(os.Stderr, "ormsql:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
