package main

import (
	"os"

	"cloudtrail-notifier/cmd/rulecheck/commands"
)

// Version information - set during build
var version = "dev"

func main() {
	if err := commands.Execute(version); err != nil {
		os.Exit(1)
	}
}
