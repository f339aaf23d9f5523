// Command barsync keeps a bar station board in sync with the order backend.
package main

import (
	"fmt"
	"os"

	"github.com/lorenzobigazzi0/app/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
