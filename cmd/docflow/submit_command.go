package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"docflow/internal/daemon"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var txType string
	var priority string
	var parentID string
	var dependencies []string

	cmd := &cobra.Command{
		Use:   "submit <payload.json>",
		Short: "Submit a transaction with the given domain payload",
		Long: "Submit reads a JSON object describing the deal (customer, deal_value, signers, ...)\n" +
			"and asks the daemon to admit it. Use '-' to read the payload from stdin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			req := daemon.SubmitRequest{
				Type:          strings.TrimSpace(txType),
				Priority:      strings.TrimSpace(priority),
				Payload:       payload,
				ParentID:      strings.TrimSpace(parentID),
				DependencyIDs: dependencies,
			}
			var resp daemon.SubmitResponse
			if err := client.post(cmd.Context(), "/api/transactions", req, &resp); err != nil {
				return fmt.Errorf("submit transaction: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Transaction %s admitted\n", resp.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&txType, "type", "t", "generic", "Transaction type (letter_of_intent, authorization_form, amendment, generic)")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Requested priority (urgent, high, normal, low, background)")
	cmd.Flags().StringVar(&parentID, "parent", "", "Parent transaction id")
	cmd.Flags().StringSliceVar(&dependencies, "depends-on", nil, "Transaction ids this one depends on")
	return cmd
}

func readPayload(cmd *cobra.Command, path string) (map[string]any, error) {
	var payload map[string]any
	if path == "-" {
		if err := json.NewDecoder(cmd.InOrStdin()).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode payload from stdin: %w", err)
		}
		return payload, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("payload %s must be a JSON object: %w", path, err)
	}
	return payload, nil
}
