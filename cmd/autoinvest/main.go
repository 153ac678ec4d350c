package main

import (
	"os"

	"github.com/wonny/autoinvest/cmd/autoinvest/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
