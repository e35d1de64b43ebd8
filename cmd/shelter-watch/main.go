package main

import (
	"os"

	"github.com/mr1hm/go-shelter-alerts/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
