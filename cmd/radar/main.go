// Package main provides the entry point for the radar CLI.
package main

import (
	"os"

	"github.com/civicwatch/radar/cmd/radar/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
