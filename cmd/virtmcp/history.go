package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/cochaviz/virtmcp/internal/store"
)

var failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))

func newHistoryCommand(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the most recent tool calls from the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(c.cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			calls, err := db.RecentCalls(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(calls) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), infoStyle.Render("no tool calls recorded"))
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), historyTable(calls))
			return err
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of calls to show")
	return cmd
}

func historyTable(calls []store.ToolCall) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(branchStyle).
		Headers("TIME", "TOOL", "ACTION", "RESULT", "DURATION")
	for _, call := range calls {
		result := "ok"
		if !call.Success {
			result = failedStyle.Render(call.ErrorCode)
		}
		t.Row(
			call.CalledAt.Local().Format(time.DateTime),
			call.Tool,
			call.Action,
			result,
			(time.Duration(call.DurationMS) * time.Millisecond).String(),
		)
	}
	return t.String()
}
