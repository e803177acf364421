package main

import (
	"os"

	"github.com/consultpro/agents/cmd/consultpro"
)

func main() {
	if err := consultpro.Execute(); err != nil {
		os.Exit(1)
	}
}
