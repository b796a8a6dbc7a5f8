package tools

import (
	"context"
	"fmt"

	"github.com/cochaviz/virtmcp/internal/templates"
	"github.com/cochaviz/virtmcp/internal/vm"
)

// TemplateArgs are the template_management parameters.
type TemplateArgs struct {
	Action       string `json:"action" jsonschema:"operation to perform: list, get, create, delete or deploy"`
	TemplateName string `json:"template_name,omitempty" jsonschema:"get, create, delete and deploy: name of the template"`
	Description  string `json:"description,omitempty" jsonschema:"create: what the template is for"`
	OSType       string `json:"os_type,omitempty" jsonschema:"create: guest OS type identifier such as Ubuntu_64"`
	MemoryMB     int    `json:"memory_mb,omitempty" jsonschema:"create: memory in MB (at least 128)"`
	CPUs         int    `json:"cpus,omitempty" jsonschema:"create: number of virtual CPUs (1 to 32)"`
	DiskSizeGB   int    `json:"disk_size_gb,omitempty" jsonschema:"create: size of the primary disk in GB"`
	NetworkType  string `json:"network_type,omitempty" jsonschema:"create: first adapter type (nat, bridged, intnet, hostonly or none)"`
	VMName       string `json:"vm_name,omitempty" jsonschema:"deploy: name of the machine to create"`
	BaseFolder   string `json:"base_folder,omitempty" jsonschema:"deploy: folder the machine files are placed in"`
}

func (a *TemplateArgs) SetAction(action string) { a.Action = action }

var templateActions = []Action{
	{Name: "list", Description: "List the machine templates", Granular: "list_templates"},
	{Name: "get", Description: "Show one machine template", Granular: "get_template"},
	{Name: "create", Description: "Add a machine template to the catalogue", Granular: "create_template"},
	{Name: "delete", Description: "Remove a machine template from the catalogue", Granular: "delete_template"},
	{Name: "deploy", Description: "Create a virtual machine from a template", Granular: "deploy_template"},
}

func templateTool(deps Deps) Definition[TemplateArgs] {
	const name = "template_management"
	return Definition[TemplateArgs]{
		Name:        name,
		Category:    "template",
		Description: "Machine templates: keep preconfigured machine definitions and create virtual machines from them.",
		Actions:     templateActions,
		Handle: func(ctx context.Context, in TemplateArgs) Result {
			if r, valid := checkAction(name, in.Action, templateActions); !valid {
				return r
			}
			if deps.Templates == nil {
				return unavailable(in.Action, "a template file")
			}
			if in.Action != "list" && blank(in.TemplateName) {
				return required("template_name", in.Action)
			}
			return templateDispatch(ctx, deps, in)
		},
	}
}

func templateDispatch(ctx context.Context, deps Deps, in TemplateArgs) Result {
	c := deps.Templates
	switch in.Action {
	case "list":
		list, err := c.List()
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("found %d templates", len(list)), map[string]any{"count": len(list), "templates": list})
	case "get":
		got, err := c.Get(in.TemplateName)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, "", got)
	case "create":
		t := templates.Template{
			Name:        in.TemplateName,
			Description: in.Description,
			OSType:      in.OSType,
			MemoryMB:    in.MemoryMB,
			CPUs:        in.CPUs,
			DiskSizeGB:  in.DiskSizeGB,
			NetworkType: in.NetworkType,
		}
		if err := c.Create(t); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("created template %s", t.Name), t)
	case "delete":
		if err := c.Delete(in.TemplateName); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("deleted template %s", in.TemplateName), map[string]any{"template_name": in.TemplateName})
	case "deploy":
		if blank(in.VMName) {
			return required("vm_name", in.Action)
		}
		if deps.Hypervisor == nil {
			return unavailable(in.Action, "a hypervisor")
		}
		t, err := c.Get(in.TemplateName)
		if err != nil {
			return fail(in.Action, err)
		}
		opts := t.Options(in.VMName, vm.CreateOptions{
			MemoryMB:    deps.Defaults.MemoryMB,
			CPUs:        deps.Defaults.CPUs,
			DiskSizeGB:  deps.Defaults.DiskGB,
			NetworkType: "nat",
			BaseFolder:  orDefault(in.BaseFolder, deps.Defaults.VMFolder),
		})
		if err := opts.Validate(); err != nil {
			return fail(in.Action, err)
		}
		details, err := deps.Hypervisor.CreateVM(ctx, opts)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("created %s from template %s", in.VMName, t.Name), map[string]any{
			"template_name": t.Name,
			"vm":            details,
		})
	}
	return unhandled(in.Action)
}
