package tools

import (
	"context"
	"fmt"

	"github.com/cochaviz/virtmcp/internal/portfolio"
)

// PortfolioArgs are the portfolio_management parameters.
type PortfolioArgs struct {
	Action        string `json:"action" jsonschema:"operation to perform: list, get, reload or apply"`
	PortfolioName string `json:"portfolio_name,omitempty" jsonschema:"get and apply: name of the portfolio"`
}

func (a *PortfolioArgs) SetAction(action string) { a.Action = action }

var portfolioActions = []Action{
	{Name: "list", Description: "List the portfolios found in the portfolio directory", Granular: "list_portfolios"},
	{Name: "get", Description: "Show one portfolio and its targets", Granular: "get_portfolio"},
	{Name: "reload", Description: "Re-read the portfolio directory", Granular: "reload_portfolios"},
	{Name: "apply", Description: "Restore each target's snapshot and start it", Granular: "apply_portfolio"},
}

func portfolioTool(deps Deps) Definition[PortfolioArgs] {
	const name = "portfolio_management"
	return Definition[PortfolioArgs]{
		Name:        name,
		Category:    "portfolio",
		Description: "Portfolios: named sets of virtual machines that are restored and started together.",
		Actions:     portfolioActions,
		Handle: func(ctx context.Context, in PortfolioArgs) Result {
			if r, valid := checkAction(name, in.Action, portfolioActions); !valid {
				return r
			}
			if deps.Portfolios == nil {
				return unavailable(in.Action, "a portfolio directory")
			}
			if (in.Action == "get" || in.Action == "apply") && blank(in.PortfolioName) {
				return required("portfolio_name", in.Action)
			}
			p := deps.Portfolios
			switch in.Action {
			case "list":
				list, err := p.List()
				if err != nil {
					return fail(in.Action, err)
				}
				return ok(in.Action, fmt.Sprintf("found %d portfolios", len(list)), map[string]any{"count": len(list), "portfolios": list})
			case "get":
				got, err := p.Get(in.PortfolioName)
				if err != nil {
					return fail(in.Action, err)
				}
				return ok(in.Action, "", got)
			case "reload":
				n, err := p.Reload()
				if err != nil {
					return fail(in.Action, err)
				}
				return ok(in.Action, fmt.Sprintf("loaded %d portfolios", n), map[string]any{"count": n})
			case "apply":
				if deps.Hypervisor == nil {
					return unavailable(in.Action, "a hypervisor")
				}
				got, err := p.Get(in.PortfolioName)
				if err != nil {
					return fail(in.Action, err)
				}
				results, err := portfolio.Apply(ctx, deps.Hypervisor, got)
				if err != nil {
					r := fail(in.Action, err)
					r.Data = map[string]any{"portfolio": got.Name, "targets": results}
					return r
				}
				return ok(in.Action, fmt.Sprintf("applied %s to %d machines", got.Name, len(results)), map[string]any{
					"portfolio": got.Name,
					"targets":   results,
				})
			}
			return unhandled(in.Action)
		},
	}
}
