package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
	"github.com/spf13/cobra"

	"github.com/cochaviz/virtmcp/internal/tools"
)

var (
	toolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
	categoryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Bold(true)
	actionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))
	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Italic(true)
	branchStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

func newToolsCommand(c *cli) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Show the tools, their actions and the granular tool names",
		RunE: func(cmd *cobra.Command, args []string) error {
			set := tools.New(tools.Deps{Logger: c.commandLogger("tools")})
			out := toolTree(set.Specs(), category)
			if out == "" {
				return fmt.Errorf("no tools in category %q", category)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only show tools of this category")
	return cmd
}

// toolTree renders specs grouped by category. Empty when nothing matches.
func toolTree(specs []tools.Spec, category string) string {
	root := tree.New().
		Root(toolStyle.Render("virtmcp")).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(branchStyle)

	var (
		order      []string
		byCategory = map[string]*tree.Tree{}
	)
	for _, spec := range specs {
		if category != "" && !strings.EqualFold(spec.Category, category) {
			continue
		}
		group, found := byCategory[spec.Category]
		if !found {
			group = tree.New().Root(categoryStyle.Render(spec.Category))
			byCategory[spec.Category] = group
			order = append(order, spec.Category)
		}

		node := tree.New().Root(lipgloss.JoinHorizontal(
			lipgloss.Top,
			toolStyle.Render(spec.Name),
			" ",
			infoStyle.Render(fmt.Sprintf("(%d actions)", len(spec.Actions))),
		))
		for _, action := range spec.Actions {
			node.Child(fmt.Sprintf("%s %s %s",
				actionStyle.Render(action.Name),
				branchStyle.Render("->"),
				infoStyle.Render(action.Granular),
			))
		}
		group.Child(node)
	}
	if len(order) == 0 {
		return ""
	}
	for _, name := range order {
		root.Child(byCategory[name])
	}
	return root.String()
}
