package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/cochaviz/virtmcp/internal/portfolio"
)

func newPortfolioCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Inspect the machine portfolios",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the portfolios found in the portfolio directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := portfolio.NewManager(c.cfg.PortfolioDir, c.commandLogger("portfolio list"))
			portfolios, err := manager.List()
			if err != nil {
				return err
			}

			if len(portfolios) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), infoStyle.Render("no portfolios in "+c.cfg.PortfolioDir))
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), portfolioTable(portfolios))
			return err
		},
	}

	show := &cobra.Command{
		Use:   "show <name>",
		Args:  cobra.ExactArgs(1),
		Short: "Print one portfolio as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := portfolio.NewManager(c.cfg.PortfolioDir, c.commandLogger("portfolio show"))
			p, err := manager.Get(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func portfolioTable(portfolios []portfolio.Portfolio) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(branchStyle).
		Headers("NAME", "VERSION", "TARGETS", "DESCRIPTION")
	for _, p := range portfolios {
		t.Row(p.Name, p.Version, strconv.Itoa(len(p.Targets)), p.Description)
	}
	return t.String()
}
