package main

import (
	"os"

	"github.com/rustyeddy/goldpair/cmd/goldpair/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
