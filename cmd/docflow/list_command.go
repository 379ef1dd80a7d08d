package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"docflow/internal/daemon"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List journaled transactions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			query := url.Values{}
			query.Set("limit", strconv.Itoa(limit))
			for _, status := range statuses {
				query.Add("status", status)
			}
			var resp daemon.ListResponse
			if err := client.get(cmd.Context(), "/api/transactions?"+query.Encode(), &resp); err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			if len(resp.Transactions) == 0 {
				fmt.Fprintln(out, "No transactions")
				return nil
			}
			rows := make([][]string, 0, len(resp.Transactions))
			for _, tx := range resp.Transactions {
				rows = append(rows, []string{
					tx.ID,
					humanize(string(tx.Type)),
					tx.Priority.String(),
					string(tx.Status),
					humanize(string(tx.Stage)),
					tx.UpdatedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(out, renderTable("", []string{"ID", "Type", "Priority", "Status", "Stage", "Updated"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (pending, processing, waiting_signature, signed, completed, failed, cancelled)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output raw JSON")
	return cmd
}

func trimmedOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
