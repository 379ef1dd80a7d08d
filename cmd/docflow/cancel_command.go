package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"docflow/internal/daemon"
)

func newCancelCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			path := "/api/transactions/" + url.PathEscape(args[0]) + "/cancel"
			if err := client.post(cmd.Context(), path, daemon.CancelRequest{Reason: reason}, nil); err != nil {
				return fmt.Errorf("cancel %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Transaction %s cancelled\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Reason recorded in the transaction history")
	return cmd
}
