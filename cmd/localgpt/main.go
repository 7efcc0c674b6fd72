// Package main provides the entry point for the LocalGPT CLI.
package main

import (
	"fmt"
	"os"

	"github.com/localgpt/localgpt/cmd/localgpt/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
