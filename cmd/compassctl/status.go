package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the server's lifecycle state and metrics snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := a.client.Status(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "state:   %s (%s)\n", status.State, status.Mode); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(out, "uptime:  %ds\n", status.Uptime); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(out, "models:  %v\n", status.ConfiguredModels); err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "queries: %d total, %d successful, %d failed\n",
				status.Metrics.QueriesTotal, status.Metrics.SuccessfulTotal, status.Metrics.FailedTotal)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")

	return cmd
}
