package main

import (
	"os"

	"github.com/monoklix/mkx-cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
