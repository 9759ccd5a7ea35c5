// Package main is the entry point for the ivvctl administration tool.
package main

import (
	"os"

	"github.com/good-yellow-bee/ivvboard/cmd/ivvctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
