package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"docflow/internal/daemon"
	"docflow/internal/transaction"
	"docflow/internal/workflow"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and handler status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			path := "/api/status?preflight=1"
			if skipPreflight {
				path = "/api/status"
			}
			var status daemon.Status
			if err := client.get(cmd.Context(), path, &status); err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, strings.Join(renderStatus(status, shouldColorize(out)), "\n"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output raw JSON")
	cmd.Flags().BoolVar(&skipPreflight, "no-preflight", false, "Skip directory and endpoint checks")
	return cmd
}

func renderStatus(status daemon.Status, colorize bool) []string {
	wf := status.Workflow
	var lines []string

	lines = append(lines, renderSectionHeader("Engine", colorize)...)
	runningKind := statusError
	runningText := "stopped"
	if wf.Running {
		runningKind, runningText = statusOK, "running"
	}
	lines = append(lines,
		renderStatusLine("Coordinator", runningKind, runningText, colorize),
		renderValueLine("Engine ID", wf.EngineID),
		renderValueLine("PID", strconv.Itoa(status.PID)),
		renderValueLine("Journal", status.JournalPath),
	)
	if wf.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, wf.LastError, colorize))
	}

	q := wf.Queue
	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Queue", colorize)...)
	utilKind := statusOK
	for _, alert := range wf.Alerts {
		if alert.Type == workflow.AlertQueueUtilization {
			utilKind = statusWarn
		}
	}
	lines = append(lines,
		renderStatusLine("Utilization", utilKind, fmt.Sprintf("%.0f%% of %d", q.Utilization*100, q.MaxSize), colorize),
		renderValueLine("Pending", strconv.Itoa(q.Pending)),
		renderValueLine("Processing", strconv.Itoa(q.Processing)),
		renderValueLine("Completed (retained)", strconv.Itoa(q.Completed)),
		renderValueLine("Avg processing time", q.AverageProcessingTime.Round(1e6).String()),
	)
	if len(q.StageCounts) > 0 {
		rows := make([][]string, 0, len(q.StageCounts))
		for _, st := range transaction.AllStages() {
			if n, ok := q.StageCounts[st]; ok && n > 0 {
				rows = append(rows, []string{humanize(string(st)), strconv.Itoa(n)})
			}
		}
		if len(rows) > 0 {
			lines = append(lines, renderTable("", []string{"Stage", "Transactions"}, rows, []columnAlignment{alignLeft, alignRight}))
		}
	}

	m := wf.Metrics
	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Metrics", colorize)...)
	lines = append(lines, renderTable("", []string{"Counter", "Value"}, [][]string{
		{"Received", strconv.FormatInt(m.TransactionsReceived, 10)},
		{"Documents generated", strconv.FormatInt(m.DocumentsGenerated, 10)},
		{"Documents stored", strconv.FormatInt(m.DocumentsStored, 10)},
		{"Signatures requested", strconv.FormatInt(m.SignaturesRequested, 10)},
		{"Signatures completed", strconv.FormatInt(m.SignaturesCompleted, 10)},
		{"Workflows completed", strconv.FormatInt(m.WorkflowsCompleted, 10)},
		{"Workflows failed", strconv.FormatInt(m.WorkflowsFailed, 10)},
		{"Cancelled", strconv.FormatInt(m.TransactionsCancelled, 10)},
		{"Conversion rate", fmt.Sprintf("%.2f", m.ConversionRate)},
		{"Error rate", fmt.Sprintf("%.2f", m.ErrorRate)},
	}, []columnAlignment{alignLeft, alignRight}))
	for _, alert := range wf.Alerts {
		lines = append(lines, renderStatusLine(humanize(alert.Type), statusWarn,
			fmt.Sprintf("%.2f (threshold %.2f)", alert.Value, alert.Threshold), colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Handlers", colorize)...)
	if len(wf.StageHandlers) == 0 && len(wf.Integrations) == 0 {
		lines = append(lines, renderStatusLine("Registry", statusWarn, "no handlers registered", colorize))
	}
	names := make([]string, 0, len(wf.StageHealth))
	for name := range wf.StageHealth {
		names = append(names, name)
	}
	sort.Strings(names)
	registered := make(map[string]bool, len(names))
	for _, name := range names {
		health := wf.StageHealth[name]
		registered[name] = true
		kind := statusOK
		if !health.Ready {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(humanize(name), kind, health.Detail, colorize))
	}
	for _, name := range append(append([]string(nil), wf.StageHandlers...), wf.Integrations...) {
		if !registered[name] {
			lines = append(lines, renderStatusLine(humanize(name), statusInfo, "registered", colorize))
		}
	}

	if len(status.Preflight) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Preflight", colorize)...)
		for _, check := range status.Preflight {
			kind := statusOK
			switch {
			case check.Passed:
			case check.Optional:
				kind = statusWarn
			default:
				kind = statusError
			}
			lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
		}
	}
	return lines
}
