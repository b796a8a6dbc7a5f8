package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/cochaviz/virtmcp/internal/templates"
)

func newTemplateCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Inspect the machine templates",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the templates in the template file",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := templates.NewCatalog(c.cfg.TemplateFile, c.commandLogger("template list"))
			list, err := catalog.List()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), infoStyle.Render("no templates in "+c.cfg.TemplateFile))
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), templateTable(list))
			return err
		},
	}

	cmd.AddCommand(list)
	return cmd
}

func templateTable(list []templates.Template) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(branchStyle).
		Headers("NAME", "OS TYPE", "MEMORY", "CPUS", "DISK", "DESCRIPTION")
	orDash := func(n int, suffix string) string {
		if n == 0 {
			return "-"
		}
		return strconv.Itoa(n) + suffix
	}
	for _, tmpl := range list {
		t.Row(
			tmpl.Name,
			tmpl.OSType,
			orDash(tmpl.MemoryMB, " MB"),
			orDash(tmpl.CPUs, ""),
			orDash(tmpl.DiskSizeGB, " GB"),
			tmpl.Description,
		)
	}
	return t.String()
}
