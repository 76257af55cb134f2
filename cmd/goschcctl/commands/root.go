// Package commands implements the goschcctl CLI commands.
package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// httpClient is the shared client for talking to the goschcd admin API.
	httpClient = &http.Client{Timeout: 10 * time.Second}

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the goschcd admin HTTP address (host:port).
	serverAddr string
)

// rootCmd is the top-level cobra command for goschcctl.
var rootCmd = &cobra.Command{
	Use:   "goschcctl",
	Short: "CLI client for the goschcd daemon",
	Long:  "goschcctl talks to the goschcd admin HTTP/JSON API to compress, decompress, and inspect SCHC contexts.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8080",
		"goschcd admin HTTP address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(compressCmd())
	rootCmd.AddCommand(decompressCmd())
	rootCmd.AddCommand(contextsCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func baseURL() string {
	return "http://" + serverAddr
}
