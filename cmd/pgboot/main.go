// Package main provides the pgboot command.
package main

import (
	"os"

	"github.com/leapstack-labs/pgboot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
