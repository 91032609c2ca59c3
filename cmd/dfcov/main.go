// Package main implements the dfcov CLI. It analyzes disassembled JVM classes
// for def-use pairs, replays recorded occurrences and reports data-flow
// coverage.
package main

import (
	"os"

	"github.com/l3aro/dfcov/cmd/dfcov/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.SetVersion(version, buildTime)
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
