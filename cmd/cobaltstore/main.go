// Package main is the entry point for the CobaltStore blob storage emulator.
package main

import "github.com/cobaltstore/cobaltstore/internal/cli"

func main() {
	cli.Execute()
}
