package main

import (
	"os"

	"github.com/MeKo-Tech/foodlens/cmd/foodlens/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
