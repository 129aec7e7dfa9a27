// Package main is the entry point for the Stonecrest simulated investment platform.
// The server manages virtual portfolios, strategy allocations and copy trading,
// and runs the periodic rebalance, dividend, snapshot and backup jobs.
package main

import (
	"os"

	"github.com/bensonidabosa/stonecrestcapital/cmd/stonecrest/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
