package main

import (
	"os"

	"github.com/salesdash/salesdash/cmd/salesdash/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
