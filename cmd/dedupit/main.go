// Package main provides the entry point for the dedupit service.
package main

import (
	"os"

	"github.com/snowpilotorg/dedupit/cmd/dedupit/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
