// Command kvdbd runs the key-value database server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "kvdbd",
	Short:   "kvdbd is a partitioned, write-ahead-logged key-value database server",
	Version: Version,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
