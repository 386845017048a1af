package main

import (
	"os"

	"github.com/ab-optimizer/ab-optimizer/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
