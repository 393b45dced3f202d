package main

import (
	"os"

	"cipherelay/cmd/cipherelay/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
