package main

import (
	"os"

	"github.com/famgate/famgate/cmd/famgate/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
