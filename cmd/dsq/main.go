// Command dsq runs jq-style queries over tree and tabular data.
package main

import (
	"os"

	"github.com/mattn/go-isatty"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		printError(os.Stderr, err, isatty.IsTerminal(os.Stderr.Fd()))
		os.Exit(1)
	}
}
