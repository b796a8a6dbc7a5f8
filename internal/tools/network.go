package tools

import (
	"context"
	"fmt"

	"github.com/cochaviz/virtmcp/internal/vbox"
)

// NetworkArgs are the network_management parameters.
type NetworkArgs struct {
	Action      string `json:"action" jsonschema:"operation to perform, see available actions"`
	NetworkName string `json:"network_name,omitempty" jsonschema:"host-only or NAT network name; for configure_adapter the attached interface or network"`
	IP          string `json:"ip,omitempty" jsonschema:"IPv4 address of a host-only interface"`
	Netmask     string `json:"netmask,omitempty" jsonschema:"IPv4 netmask of a host-only interface (default 255.255.255.0)"`
	CIDR        string `json:"cidr,omitempty" jsonschema:"create_nat_network: network in CIDR notation"`
	DHCP        *bool  `json:"dhcp,omitempty" jsonschema:"create_nat_network: enable the DHCP server (default true)"`
	VMName      string `json:"vm_name,omitempty" jsonschema:"virtual machine whose adapters are listed or changed"`
	Slot        int    `json:"adapter_slot,omitempty" jsonschema:"adapter slot 0 to 7 (default 0)"`
	NetworkType string `json:"network_type,omitempty" jsonschema:"configure_adapter: nat, bridged, hostonly, internal, natnetwork or none"`
	RuleName    string `json:"rule_name,omitempty" jsonschema:"port forwarding rule name"`
	Protocol    string `json:"protocol,omitempty" jsonschema:"add_port_forward: tcp or udp (default tcp)"`
	HostIP      string `json:"host_ip,omitempty" jsonschema:"add_port_forward: host address to bind, empty for all"`
	HostPort    int    `json:"host_port,omitempty" jsonschema:"add_port_forward: host port"`
	GuestIP     string `json:"guest_ip,omitempty" jsonschema:"add_port_forward: guest address, empty for the DHCP lease"`
	GuestPort   int    `json:"guest_port,omitempty" jsonschema:"add_port_forward: guest port"`
}

func (a *NetworkArgs) SetAction(action string) { a.Action = action }

var networkActions = []Action{
	{Name: "list_networks", Description: "List host-only networks and libvirt networks", Granular: "list_networks"},
	{Name: "create_network", Description: "Create a host-only network", Granular: "create_network"},
	{Name: "remove_network", Description: "Remove a host-only network", Granular: "remove_network"},
	{Name: "configure_network", Description: "Set the address of a host-only network", Granular: "configure_network"},
	{Name: "list_adapters", Description: "List the network adapters of a virtual machine", Granular: "list_adapters"},
	{Name: "configure_adapter", Description: "Change the attachment of a VM network adapter", Granular: "configure_adapter"},
	{Name: "list_host_interfaces", Description: "List host network interfaces and bridgeable adapters", Granular: "list_host_interfaces"},
	{Name: "list_nat_networks", Description: "List NAT networks", Granular: "list_nat_networks"},
	{Name: "create_nat_network", Description: "Create a NAT network", Granular: "create_nat_network"},
	{Name: "remove_nat_network", Description: "Remove a NAT network", Granular: "remove_nat_network"},
	{Name: "add_port_forward", Description: "Add a NAT port forwarding rule", Granular: "add_port_forward"},
	{Name: "remove_port_forward", Description: "Remove a NAT port forwarding rule", Granular: "remove_port_forward"},
}

func networkTool(deps Deps) Definition[NetworkArgs] {
	const name = "network_management"
	return Definition[NetworkArgs]{
		Name:        name,
		Category:    "network",
		Description: "Networking: host-only and NAT networks, VM adapters, port forwarding and host interfaces.",
		Actions:     networkActions,
		Handle: func(ctx context.Context, in NetworkArgs) Result {
			if r, valid := checkAction(name, in.Action, networkActions); !valid {
				return r
			}
			if in.Action == "list_host_interfaces" {
				return listHostInterfaces(ctx, deps, in.Action)
			}
			if deps.Networks == nil {
				return unavailable(in.Action, "VirtualBox networking")
			}
			return networkDispatch(ctx, deps, in)
		},
	}
}

func networkDispatch(ctx context.Context, deps Deps, in NetworkArgs) Result {
	n := deps.Networks
	switch in.Action {
	case "list_networks":
		hostOnly, err := n.ListHostOnlyNetworks(ctx)
		if err != nil {
			return fail(in.Action, err)
		}
		data := map[string]any{"host_only": hostOnly}
		if deps.LibvirtNetworks != nil {
			nets, err := deps.LibvirtNetworks.ListNetworks(ctx)
			if err != nil {
				data["libvirt_error"] = err.Error()
			} else {
				data["libvirt"] = nets
			}
		}
		return ok(in.Action, fmt.Sprintf("found %d host-only networks", len(hostOnly)), data)

	case "create_network":
		if blank(in.IP) {
			return required("ip", in.Action)
		}
		created, err := n.CreateHostOnlyNetwork(ctx, in.IP, in.Netmask)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("created host-only network %s", created), map[string]any{
			"network_name": created,
			"ip":           in.IP,
			"netmask":      orDefault(in.Netmask, "255.255.255.0"),
		})

	case "remove_network":
		if blank(in.NetworkName) {
			return required("network_name", in.Action)
		}
		if err := n.RemoveHostOnlyNetwork(ctx, in.NetworkName); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("removed host-only network %s", in.NetworkName), map[string]any{"network_name": in.NetworkName})

	case "configure_network":
		if blank(in.NetworkName) {
			return required("network_name", in.Action)
		}
		if blank(in.IP) {
			return required("ip", in.Action)
		}
		if err := n.ConfigureHostOnlyNetwork(ctx, in.NetworkName, in.IP, in.Netmask); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("configured %s", in.NetworkName), map[string]any{"network_name": in.NetworkName, "ip": in.IP})

	case "list_adapters":
		if blank(in.VMName) {
			return required("vm_name", in.Action)
		}
		adapters, err := n.ListAdapters(ctx, in.VMName)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, "", map[string]any{"vm_name": in.VMName, "adapters": adapters})

	case "configure_adapter":
		if blank(in.VMName) {
			return required("vm_name", in.Action)
		}
		if blank(in.NetworkType) {
			return required("network_type", in.Action)
		}
		if err := n.ConfigureAdapter(ctx, in.VMName, in.Slot, in.NetworkType, in.NetworkName); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("adapter %d of %s set to %s", in.Slot, in.VMName, in.NetworkType), map[string]any{
			"vm_name":      in.VMName,
			"adapter_slot": in.Slot,
			"network_type": in.NetworkType,
		})

	case "list_nat_networks":
		nets, err := n.ListNATNetworks(ctx)
		if err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("found %d NAT networks", len(nets)), map[string]any{"nat_networks": nets})

	case "create_nat_network":
		if blank(in.NetworkName) {
			return required("network_name", in.Action)
		}
		if blank(in.CIDR) {
			return required("cidr", in.Action)
		}
		dhcp := in.DHCP == nil || *in.DHCP
		if err := n.CreateNATNetwork(ctx, in.NetworkName, in.CIDR, dhcp); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("created NAT network %s", in.NetworkName), map[string]any{
			"network_name": in.NetworkName,
			"cidr":         in.CIDR,
			"dhcp":         dhcp,
		})

	case "remove_nat_network":
		if blank(in.NetworkName) {
			return required("network_name", in.Action)
		}
		if err := n.RemoveNATNetwork(ctx, in.NetworkName); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("removed NAT network %s", in.NetworkName), map[string]any{"network_name": in.NetworkName})

	case "add_port_forward":
		if blank(in.VMName) {
			return required("vm_name", in.Action)
		}
		if blank(in.RuleName) {
			return required("rule_name", in.Action)
		}
		if in.HostPort == 0 {
			return required("host_port", in.Action)
		}
		if in.GuestPort == 0 {
			return required("guest_port", in.Action)
		}
		rule := vbox.PortForward{
			Name:      in.RuleName,
			Protocol:  in.Protocol,
			HostIP:    in.HostIP,
			HostPort:  in.HostPort,
			GuestIP:   in.GuestIP,
			GuestPort: in.GuestPort,
		}
		if err := n.AddPortForward(ctx, in.VMName, in.Slot, rule); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("forwarding host port %d to guest port %d on %s", in.HostPort, in.GuestPort, in.VMName), map[string]any{
			"vm_name":    in.VMName,
			"rule_name":  in.RuleName,
			"host_port":  in.HostPort,
			"guest_port": in.GuestPort,
		})

	case "remove_port_forward":
		if blank(in.VMName) {
			return required("vm_name", in.Action)
		}
		if blank(in.RuleName) {
			return required("rule_name", in.Action)
		}
		if err := n.RemovePortForward(ctx, in.VMName, in.Slot, in.RuleName); err != nil {
			return fail(in.Action, err)
		}
		return ok(in.Action, fmt.Sprintf("removed rule %s from %s", in.RuleName, in.VMName), map[string]any{"vm_name": in.VMName, "rule_name": in.RuleName})
	}
	return unhandled(in.Action)
}

// listHostInterfaces reports the kernel's view of the host interfaces and,
// when VirtualBox is configured, the adapters it can bridge to.
func listHostInterfaces(ctx context.Context, deps Deps, action string) Result {
	ifaces, err := deps.Host.Interfaces(ctx)
	if err != nil {
		return fail(action, err)
	}
	data := map[string]any{"interfaces": ifaces}
	if deps.Networks != nil {
		bridged, err := deps.Networks.ListBridgedInterfaces(ctx)
		if err != nil {
			data["bridged_error"] = err.Error()
		} else {
			data["bridged"] = bridged
		}
	}
	return ok(action, fmt.Sprintf("found %d host interfaces", len(ifaces)), data)
}
