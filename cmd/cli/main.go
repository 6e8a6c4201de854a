// Package main is the entry point for the jobwatch CLI.
// The CLI follows job status and logs over the message bus from a terminal.
package main

import (
	"os"

	"jobwatch/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
