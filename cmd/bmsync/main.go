// Package main provides the entry point for the bmsync CLI.
package main

import (
	"os"

	"github.com/basic-memory/bmsync/cmd/bmsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
