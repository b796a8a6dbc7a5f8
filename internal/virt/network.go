package virt

import (
	"context"
	"encoding/xml"
	"fmt"
	"net"
	"slices"
	"strings"

	libvirt "libvirt.org/go/libvirt"

	"github.com/cochaviz/virtmcp/internal/vmerr"
)

// Network is a libvirt virtual network.
type Network struct {
	Name        string      `json:"name"`
	UUID        string      `json:"uuid,omitempty"`
	Bridge      string      `json:"bridge,omitempty"`
	Forward     string      `json:"forward_mode,omitempty"`
	Active      bool        `json:"active"`
	Autostart   bool        `json:"autostart"`
	Addresses   []string    `json:"addresses,omitempty"`
	DHCPRanges  []string    `json:"dhcp_ranges,omitempty"`
	PinnedHosts []DHCPLease `json:"pinned_hosts,omitempty"`
}

// DHCPLease pairs a MAC address with an IPv4 address.
type DHCPLease struct {
	MAC      string `json:"mac"`
	IP       string `json:"ip"`
	Hostname string `json:"hostname,omitempty"`
}

type networkIPEntry struct {
	Address string `xml:"address,attr"`
	Netmask string `xml:"netmask,attr"`
	Prefix  string `xml:"prefix,attr"`
	Family  string `xml:"family,attr"`
	DHCP    struct {
		Ranges []struct {
			Start string `xml:"start,attr"`
			End   string `xml:"end,attr"`
		} `xml:"range"`
		Hosts []struct {
			MAC  string `xml:"mac,attr"`
			IP   string `xml:"ip,attr"`
			Name string `xml:"name,attr"`
		} `xml:"host"`
	} `xml:"dhcp"`
}

type networkDoc struct {
	Name    string `xml:"name"`
	UUID    string `xml:"uuid"`
	Forward struct {
		Mode string `xml:"mode,attr"`
	} `xml:"forward"`
	Bridge struct {
		Name string `xml:"name,attr"`
	} `xml:"bridge"`
	IPs []networkIPEntry `xml:"ip"`
}

// parseNetworkXML fills the static parts of a Network from its definition.
func parseNetworkXML(desc string) (Network, error) {
	var doc networkDoc
	if err := xml.Unmarshal([]byte(desc), &doc); err != nil {
		return Network{}, fmt.Errorf("parse network xml: %w", err)
	}
	n := Network{
		Name:    doc.Name,
		UUID:    doc.UUID,
		Bridge:  doc.Bridge.Name,
		Forward: doc.Forward.Mode,
	}
	for _, ip := range doc.IPs {
		if addr := formatAddress(ip); addr != "" {
			n.Addresses = append(n.Addresses, addr)
		}
		if strings.EqualFold(strings.TrimSpace(ip.Family), "ipv6") {
			continue
		}
		for _, r := range ip.DHCP.Ranges {
			n.DHCPRanges = append(n.DHCPRanges, strings.TrimSpace(r.Start)+"-"+strings.TrimSpace(r.End))
		}
		for _, h := range ip.DHCP.Hosts {
			if parseIPv4(h.IP) == nil {
				continue
			}
			n.PinnedHosts = append(n.PinnedHosts, DHCPLease{
				MAC:      strings.ToLower(strings.TrimSpace(h.MAC)),
				IP:       strings.TrimSpace(h.IP),
				Hostname: h.Name,
			})
		}
	}
	return n, nil
}

func formatAddress(ip networkIPEntry) string {
	addr := strings.TrimSpace(ip.Address)
	if addr == "" {
		return ""
	}
	if p := strings.TrimSpace(ip.Prefix); p != "" {
		return addr + "/" + p
	}
	if mask := parseIPv4(ip.Netmask); mask != nil {
		ones, _ := net.IPMask(mask).Size()
		return fmt.Sprintf("%s/%d", addr, ones)
	}
	return addr
}

func parseIPv4(value string) net.IP {
	ip := net.ParseIP(strings.TrimSpace(value))
	if ip == nil {
		return nil
	}
	return ip.To4()
}

// ListNetworks returns every libvirt network, sorted by name.
func (d *LibvirtDriver) ListNetworks(ctx context.Context) ([]Network, error) {
	conn, err := d.connect()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	nets, err := conn.ListAllNetworks(0)
	if err != nil {
		return nil, networkError("libvirt.list_networks", err)
	}
	out := make([]Network, 0, len(nets))
	for i := range nets {
		network := &nets[i]
		n, err := describeNetwork(network)
		network.Free()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b Network) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func describeNetwork(network *libvirt.Network) (Network, error) {
	desc, err := network.GetXMLDesc(0)
	if err != nil {
		return Network{}, networkError("libvirt.list_networks", err)
	}
	n, err := parseNetworkXML(desc)
	if err != nil {
		return Network{}, vmerr.Wrap(vmerr.CodeNetwork, "libvirt.list_networks", err)
	}
	n.Active, _ = network.IsActive()
	n.Autostart, _ = network.GetAutostart()
	return n, nil
}

// NetworkLeases returns the IPv4 DHCP leases currently handed out on name.
func (d *LibvirtDriver) NetworkLeases(ctx context.Context, name string) ([]DHCPLease, error) {
	if strings.TrimSpace(name) == "" {
		return nil, vmerr.Validation("network name is required")
	}
	conn, err := d.connect()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	network, err := conn.LookupNetworkByName(name)
	if err != nil {
		return nil, networkError("libvirt.network_leases", err)
	}
	defer network.Free()

	raw, err := network.GetDHCPLeases()
	if err != nil {
		return nil, networkError("libvirt.network_leases", err)
	}
	leases := make([]DHCPLease, 0, len(raw))
	for _, l := range raw {
		ip := parseIPv4(l.IPaddr)
		if ip == nil {
			continue
		}
		leases = append(leases, DHCPLease{
			MAC:      strings.ToLower(strings.TrimSpace(l.Mac)),
			IP:       ip.String(),
			Hostname: l.Hostname,
		})
	}
	return leases, nil
}

func networkError(op string, err error) error {
	if isInLibvirtErrors(err, libvirt.ERR_NO_NETWORK, libvirt.ERR_NETWORK_EXIST) {
		return vmerr.Wrap(vmerr.CodeNetwork, op, err)
	}
	return classify(op, err)
}
