package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "shopping",
	Short: "Family shopping list service",
	Long: `Serves shared shopping lists and items for families.

Configuration is read from the environment, optionally merged from a .env
file in the working directory. PLUGIN_CONFIG points at the YAML file with
features, role capabilities and limits.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close", "resource", label, "error", err)
	}
}
