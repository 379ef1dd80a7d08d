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

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a transaction with its stage history and errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var resp daemon.TransactionResponse
			if err := client.get(cmd.Context(), "/api/transactions/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(renderTransaction(resp), "\n"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output raw JSON")
	return cmd
}

func renderTransaction(resp daemon.TransactionResponse) []string {
	tx := resp.Transaction
	if tx == nil {
		return []string{"Transaction not found"}
	}
	lines := []string{
		renderValueLine("ID", tx.ID),
		renderValueLine("Type", humanize(string(tx.Type))),
		renderValueLine("Priority", tx.Priority.String()),
		renderValueLine("Status", string(tx.Status)),
		renderValueLine("Stage", humanize(string(tx.Stage))),
		renderValueLine("Complexity", strconv.FormatFloat(tx.ComplexityScore, 'f', 1, 64)),
		renderValueLine("Created", tx.CreatedAt.Local().Format(time.DateTime)),
		renderValueLine("Document", trimmedOrDash(tx.DocumentID)),
		renderValueLine("Signature request", trimmedOrDash(tx.SignatureRequestID)),
	}
	if d := tx.ProcessingDuration(); d > 0 {
		lines = append(lines, renderValueLine("Processing time", d.Round(time.Millisecond).String()))
	}

	if len(resp.Transitions) > 0 {
		rows := make([][]string, 0, len(resp.Transitions))
		for _, tr := range resp.Transitions {
			rows = append(rows, []string{tr.At.Local().Format(time.DateTime), humanize(string(tr.From)), humanize(string(tr.To))})
		}
		lines = append(lines, renderTable("Stage history", []string{"At", "From", "To"}, rows, nil))
	}
	if len(tx.ErrorHistory) > 0 {
		rows := make([][]string, 0, len(tx.ErrorHistory))
		for _, entry := range tx.ErrorHistory {
			rows = append(rows, []string{entry.At.Local().Format(time.DateTime), humanize(string(entry.Stage)), entry.Message})
		}
		lines = append(lines, renderTable("Errors", []string{"At", "Stage", "Message"}, rows, nil))
	}
	return lines
}
