// Command docquery compiles and runs document store queries.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/docquery/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
