package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/cochaviz/virtmcp/internal/backup"
	"github.com/cochaviz/virtmcp/internal/store"
)

func newBackupCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Inspect the virtual machine backups",
	}

	var vmName string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the recorded backups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(c.cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			backups, err := db.ListBackups(cmd.Context(), vmName)
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), infoStyle.Render("no backups recorded"))
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), backupTable(backups))
			return err
		},
	}
	list.Flags().StringVar(&vmName, "vm", "", "Only list the backups of this machine")

	cmd.AddCommand(list)
	return cmd
}

func backupTable(backups []backup.Backup) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(branchStyle).
		Headers("ID", "VM", "CREATED", "SIZE", "DESCRIPTION")
	for _, b := range backups {
		t.Row(
			b.ID,
			b.VMName,
			b.CreatedAt.Local().Format(time.DateTime),
			humanSize(b.SizeBytes),
			b.Description,
		)
	}
	return t.String()
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
