// Package main provides the countymap command.
package main

import (
	"os"

	"github.com/frances-ha/egm722/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
