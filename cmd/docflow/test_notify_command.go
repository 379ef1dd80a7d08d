package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docflow/internal/daemon"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var resp daemon.NotificationResponse
			if err := client.post(cmd.Context(), "/api/notifications/test", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent: %s (%s)\n", yesNo(resp.Sent), resp.Message)
			return nil
		},
	}
}
