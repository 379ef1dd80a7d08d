package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"docflow/internal/journal"
	"docflow/internal/logging"
	"docflow/internal/transaction"
)

func newJournalCommand(ctx *commandContext) *cobra.Command {
	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect and maintain the transaction journal",
	}
	journalCmd.AddCommand(newJournalStatsCommand(ctx))
	journalCmd.AddCommand(newJournalPruneCommand(ctx))
	return journalCmd
}

func openJournal(ctx *commandContext) (*journal.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return journal.OpenConfig(cfg, logging.NewNop())
}

func newJournalStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count journaled transactions by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJournal(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			counts, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderValueLine("Journal", store.Path()))
			if len(counts) == 0 {
				fmt.Fprintln(out, "Journal is empty")
				return nil
			}
			rows := make([][]string, 0, len(counts))
			for _, status := range sortedStatuses(counts) {
				rows = append(rows, []string{humanize(string(status)), fmt.Sprint(counts[status])})
			}
			fmt.Fprintln(out, renderTable("", []string{"Status", "Transactions"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func newJournalPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished transactions older than the given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			store, err := openJournal(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			removed, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return fmt.Errorf("prune journal: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d transaction(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Minimum age of finished transactions to delete")
	return cmd
}

func sortedStatuses(counts map[transaction.Status]int) []transaction.Status {
	statuses := make([]transaction.Status, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	return statuses
}
