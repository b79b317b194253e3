// Command sagalog inspects saga step histories and runs the demo order saga.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/sagalog/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
