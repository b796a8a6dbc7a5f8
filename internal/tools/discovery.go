package tools

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/cochaviz/virtmcp/internal/vmerr"
)

// DiscoveryArgs are the discovery_management parameters.
type DiscoveryArgs struct {
	Action   string `json:"action" jsonschema:"operation to perform: list, info or schema"`
	Category string `json:"category,omitempty" jsonschema:"list: only tools in this category"`
	Search   string `json:"search,omitempty" jsonschema:"list: only tools whose name, description or actions contain this text"`
	ToolName string `json:"tool_name,omitempty" jsonschema:"info and schema: name of the tool"`
}

func (a *DiscoveryArgs) SetAction(action string) { a.Action = action }

var discoveryActions = []Action{
	{Name: "list", Description: "List the available tools", Granular: "list_tools"},
	{Name: "info", Description: "Describe one tool and its actions", Granular: "get_tool_info"},
	{Name: "schema", Description: "Return the input schema of one tool", Granular: "get_tool_schema"},
}

// toolSummary is a Spec without its schema.
type toolSummary struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
}

func discoveryTool(specs func() []Spec) Definition[DiscoveryArgs] {
	const name = "discovery_management"
	return Definition[DiscoveryArgs]{
		Name:        name,
		Category:    "discovery",
		Description: "Tool discovery: list the tools this server offers and inspect their actions and schemas.",
		Actions:     discoveryActions,
		Handle: func(_ context.Context, in DiscoveryArgs) Result {
			if r, valid := checkAction(name, in.Action, discoveryActions); !valid {
				return r
			}
			all := specs()
			if in.Action == "list" {
				return listTools(in, all)
			}
			if blank(in.ToolName) {
				return required("tool_name", in.Action)
			}
			idx := slices.IndexFunc(all, func(s Spec) bool { return s.Name == in.ToolName })
			if idx < 0 {
				names := make([]string, len(all))
				for i, s := range all {
					names[i] = s.Name
				}
				return fail(in.Action, vmerr.Validation("unknown tool %q; available tools: %s", in.ToolName, strings.Join(names, ", ")))
			}
			spec := all[idx]
			if in.Action == "schema" {
				return ok(in.Action, "", map[string]any{"tool_name": spec.Name, "input_schema": spec.InputSchema})
			}
			spec.InputSchema = nil
			return ok(in.Action, spec.Description, spec)
		},
	}
}

func listTools(in DiscoveryArgs, all []Spec) Result {
	needle := strings.ToLower(strings.TrimSpace(in.Search))
	out := []toolSummary{}
	categories := map[string]int{}
	for _, s := range all {
		if !blank(in.Category) && !strings.EqualFold(s.Category, in.Category) {
			continue
		}
		if needle != "" && !specMatches(s, needle) {
			continue
		}
		out = append(out, toolSummary{
			Name:        s.Name,
			Category:    s.Category,
			Description: s.Description,
			Actions:     actionNames(s.Actions),
		})
		categories[s.Category]++
	}
	return ok(in.Action, fmt.Sprintf("found %d tools", len(out)), map[string]any{
		"count":      len(out),
		"tools":      out,
		"categories": categories,
	})
}

func specMatches(s Spec, needle string) bool {
	if strings.Contains(strings.ToLower(s.Name), needle) || strings.Contains(strings.ToLower(s.Description), needle) {
		return true
	}
	return slices.ContainsFunc(s.Actions, func(a Action) bool {
		return strings.Contains(strings.ToLower(a.Name), needle) ||
			strings.Contains(strings.ToLower(a.Granular), needle) ||
			strings.Contains(strings.ToLower(a.Description), needle)
	})
}
