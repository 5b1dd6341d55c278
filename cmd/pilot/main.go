package main

import (
	"os"

	"github.com/tradepilot/backend/cmd/pilot/commands"
)

// main is the entry point for the TradePilot CLI
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
