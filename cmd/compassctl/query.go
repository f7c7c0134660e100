package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	compasssdk "github.com/ashita-ai/compass/sdk/go/compass"
)

func newQueryCmd(a *app) *cobra.Command {
	var models []string
	var sessionID string
	var callerContext string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask the jury a question and print its consensus verdict",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			var opts *compasssdk.QueryOptions
			if len(models) > 0 || sessionID != "" {
				opts = &compasssdk.QueryOptions{Models: models, SessionID: sessionID}
			}

			verdict, err := a.client.Query(cmd.Context(), question, callerContext, opts)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(verdict)
			}

			return writeVerdict(cmd, verdict)
		},
	}

	cmd.Flags().StringSliceVar(&models, "models", nil, "override the jury model set for this query")
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID to thread conversational memory across calls")
	cmd.Flags().StringVar(&callerContext, "context", "", "additional context to pass alongside the question")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw verdict as JSON")

	return cmd
}

func writeVerdict(cmd *cobra.Command, v *compasssdk.Verdict) error {
	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintf(out, "verdict:     %s (%s confidence, score %.2f)\n", v.Verdict, v.Confidence, v.Score); err != nil {
		return err
	}
	if v.Representative != nil {
		if _, err := fmt.Fprintf(out, "answer:      %s\n", v.Representative.Answer); err != nil {
			return err
		}
	}
	if v.Dissenter != nil {
		if _, err := fmt.Fprintf(out, "dissenter:   %s: %s\n", v.Dissenter.Model, v.Dissenter.Answer); err != nil {
			return err
		}
	}
	for _, r := range v.Responses {
		status := "ok"
		if !r.Success {
			status = "failed: " + r.Error
		}
		if _, err := fmt.Fprintf(out, "  - %-24s %6dms  %s\n", r.Model, r.LatencyMS, status); err != nil {
			return err
		}
	}
	if v.SessionID != "" {
		if _, err := fmt.Fprintf(out, "session:     %s\n", v.SessionID); err != nil {
			return err
		}
	}
	return nil
}
