package main

import (
	"os"

	"github.com/openrota/openrota/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
