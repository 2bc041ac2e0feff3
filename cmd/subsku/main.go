// Command subsku tracks numbered sub-units of platform SKUs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/subsku/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
