// Command streamplan compiles streaming query plans into dataflow topologies.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/streamplan/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
