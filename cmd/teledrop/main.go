// Package main provides the teledrop binary entry point. It wires
// configuration, the Metadata/Blob stores, the Drop Lifecycle Coordinator,
// the HTTP delivery layer, the metrics registry, and the janitor, then
// either serves traffic or runs a one-shot maintenance sweep, depending on
// the invoked subcommand.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "teledrop",
	Short: "Teledrop - self-hosted file sharing service",
	Long: `Teledrop accepts a file and metadata over HTTP, stores the bytes in a
blob store keyed by file ID, and serves it back by slug with optional
passphrase protection and byte-range downloads.`,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
}
