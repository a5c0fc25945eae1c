// Package main is the entry point for the recast application.
package main

import (
	"os"

	"github.com/jmylchreest/recast/cmd/recast/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
