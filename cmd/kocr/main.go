// Package main provides the kocr operational CLI.
package main

import (
	"fmt"
	"os"

	"github.com/k-ocr/web-corrector/cmd/kocr/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
