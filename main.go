// Command termstore runs the termstore server and CLI.
package main

import (
	"os"

	"github.com/stevemurr/termstore/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
