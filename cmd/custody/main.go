// Command custody is the tamper-evident audit ledger CLI.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/custody/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
