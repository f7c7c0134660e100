// Package main implements compassctl, a command-line client for the
// Compass jury API.
package main

import (
	"os"

	"github.com/spf13/cobra"

	compasssdk "github.com/ashita-ai/compass/sdk/go/compass"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	client *compasssdk.Client
}

func newRootCmd() *cobra.Command {
	var baseURL string

	rootCmd := &cobra.Command{
		Use:           "compassctl",
		Short:         "compassctl: query the Compass AI jury from the terminal",
		Long:          "compassctl sends questions to a running Compass server, tracks a conversational session, and fetches status and history.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "server", envOrDefault("COMPASS_SERVER", "http://localhost:8080"), "base URL of the Compass server")

	a := &app{}
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		client, err := compasssdk.NewClient(compasssdk.Config{BaseURL: baseURL})
		if err != nil {
			return err
		}
		a.client = client
		return nil
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newQueryCmd(a),
		newHistoryCmd(a),
		newModelsCmd(a),
		newStatusCmd(a),
	)

	return rootCmd
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
