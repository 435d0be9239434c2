// Package main provides the pypes CLI entry point.
package main

import (
	"os"

	"github.com/pypes-run/pypes/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
