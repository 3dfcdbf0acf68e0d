package main

import (
	"os"

	"github.com/hanif/selaras/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
