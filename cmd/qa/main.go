package main

import (
	"os"

	"github.com/gztensor/qa-automation/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
