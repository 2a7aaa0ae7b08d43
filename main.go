package main

import (
	"os"

	"github.com/ossforge/forgesync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
