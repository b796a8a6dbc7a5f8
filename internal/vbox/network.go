package vbox

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/cochaviz/virtmcp/internal/vmerr"
)

// MaxAdapterSlot is the highest zero-based adapter slot. VirtualBox has
// eight network adapters per machine.
const MaxAdapterSlot = 7

var createdInterface = regexp.MustCompile(`Interface '([^']+)' was successfully created`)

// HostOnlyNetwork is one entry of `list hostonlyifs`.
type HostOnlyNetwork struct {
	Name            string `json:"name"`
	GUID            string `json:"guid,omitempty"`
	DHCP            string `json:"dhcp,omitempty"`
	IPAddress       string `json:"ip_address,omitempty"`
	NetworkMask     string `json:"netmask,omitempty"`
	HardwareAddress string `json:"hardware_address,omitempty"`
	Status          string `json:"status,omitempty"`
	VBoxNetworkName string `json:"vbox_network_name,omitempty"`
}

// BridgedInterface is one entry of `list bridgedifs`.
type BridgedInterface struct {
	Name            string `json:"name"`
	GUID            string `json:"guid,omitempty"`
	IPAddress       string `json:"ip_address,omitempty"`
	NetworkMask     string `json:"netmask,omitempty"`
	HardwareAddress string `json:"hardware_address,omitempty"`
	MediumType      string `json:"medium_type,omitempty"`
	Status          string `json:"status,omitempty"`
}

// NATNetwork is one entry of `list natnetworks`.
type NATNetwork struct {
	Name    string `json:"name"`
	Network string `json:"network,omitempty"`
	Gateway string `json:"gateway,omitempty"`
	DHCP    string `json:"dhcp,omitempty"`
	Enabled string `json:"enabled,omitempty"`
}

// Adapter is a configured network adapter of a machine. Slot is zero based.
type Adapter struct {
	Slot           int      `json:"slot"`
	Type           string   `json:"type"`
	MACAddress     string   `json:"mac_address,omitempty"`
	CableConnected bool     `json:"cable_connected"`
	Attachment     string   `json:"attachment,omitempty"`
	PortForwards   []string `json:"port_forwards,omitempty"`
}

// AdapterTypes maps the tool-facing network type names onto --nic values.
var AdapterTypes = map[string]string{
	"nat":        "nat",
	"bridged":    "bridged",
	"hostonly":   "hostonly",
	"internal":   "intnet",
	"intnet":     "intnet",
	"natnetwork": "natnetwork",
	"none":       "none",
}

func (m *Manager) ListHostOnlyNetworks(ctx context.Context) ([]HostOnlyNetwork, error) {
	out, err := m.exec(ctx, 0, vmerr.CodeNetwork, "list", "hostonlyifs")
	if err != nil {
		return nil, err
	}
	blocks := parseColonBlocks(out)
	networks := make([]HostOnlyNetwork, 0, len(blocks))
	for _, b := range blocks {
		networks = append(networks, HostOnlyNetwork{
			Name:            b["Name"],
			GUID:            b["GUID"],
			DHCP:            b["DHCP"],
			IPAddress:       b["IPAddress"],
			NetworkMask:     b["NetworkMask"],
			HardwareAddress: b["HardwareAddress"],
			Status:          b["Status"],
			VBoxNetworkName: b["VBoxNetworkName"],
		})
	}
	return networks, nil
}

// CreateHostOnlyNetwork creates a host-only interface and returns the name
// VirtualBox assigned to it. When ip is given the interface is configured.
func (m *Manager) CreateHostOnlyNetwork(ctx context.Context, ip, netmask string) (string, error) {
	if ip != "" {
		if err := validateIPv4(ip, netmask); err != nil {
			return "", err
		}
	}
	out, err := m.exec(ctx, 0, vmerr.CodeNetwork, "hostonlyif", "create")
	if err != nil {
		return "", err
	}
	match := createdInterface.FindStringSubmatch(out)
	if match == nil {
		return "", vmerr.New(vmerr.CodeNetwork, "vbox.hostonlyif", "could not determine created interface name from %q", strings.TrimSpace(out))
	}
	name := match[1]
	if ip != "" {
		if err := m.ConfigureHostOnlyNetwork(ctx, name, ip, netmask); err != nil {
			return name, err
		}
	}
	return name, nil
}

// ConfigureHostOnlyNetwork sets the host-side address of an interface.
func (m *Manager) ConfigureHostOnlyNetwork(ctx context.Context, name, ip, netmask string) error {
	if err := requireName("network name", name); err != nil {
		return err
	}
	if netmask == "" {
		netmask = "255.255.255.0"
	}
	if err := validateIPv4(ip, netmask); err != nil {
		return err
	}
	_, err := m.exec(ctx, 0, vmerr.CodeNetwork, "hostonlyif", "ipconfig", name, "--ip", ip, "--netmask", netmask)
	return err
}

func (m *Manager) RemoveHostOnlyNetwork(ctx context.Context, name string) error {
	if err := requireName("network name", name); err != nil {
		return err
	}
	_, err := m.exec(ctx, 0, vmerr.CodeNetwork, "hostonlyif", "remove", name)
	return err
}

func (m *Manager) ListBridgedInterfaces(ctx context.Context) ([]BridgedInterface, error) {
	out, err := m.exec(ctx, 0, vmerr.CodeNetwork, "list", "bridgedifs")
	if err != nil {
		return nil, err
	}
	blocks := parseColonBlocks(out)
	ifaces := make([]BridgedInterface, 0, len(blocks))
	for _, b := range blocks {
		ifaces = append(ifaces, BridgedInterface{
			Name:            b["Name"],
			GUID:            b["GUID"],
			IPAddress:       b["IPAddress"],
			NetworkMask:     b["NetworkMask"],
			HardwareAddress: b["HardwareAddress"],
			MediumType:      b["MediumType"],
			Status:          b["Status"],
		})
	}
	return ifaces, nil
}

func (m *Manager) ListNATNetworks(ctx context.Context) ([]NATNetwork, error) {
	out, err := m.exec(ctx, 0, vmerr.CodeNetwork, "list", "natnetworks")
	if err != nil {
		return nil, err
	}
	var networks []NATNetwork
	for _, b := range parseColonBlocks(out) {
		name := b["NetworkName"]
		if name == "" {
			name = b["Name"]
		}
		if name == "" {
			continue
		}
		networks = append(networks, NATNetwork{
			Name:    name,
			Network: b["Network"],
			Gateway: b["Gateway"],
			DHCP:    firstNonEmpty(b["DHCP Enabled"], b["DHCP Server"]),
			Enabled: b["Enabled"],
		})
	}
	return networks, nil
}

func (m *Manager) CreateNATNetwork(ctx context.Context, name, cidr string, dhcp bool) error {
	if err := requireName("network name", name); err != nil {
		return err
	}
	if _, _, err := net.ParseCIDR(cidr); err != nil {
		return vmerr.Validation("invalid network cidr %q", cidr)
	}
	args := []string{"natnetwork", "add", "--netname", name, "--network", cidr, "--enable"}
	if dhcp {
		args = append(args, "--dhcp", "on")
	}
	_, err := m.exec(ctx, 0, vmerr.CodeNetwork, args...)
	return err
}

func (m *Manager) RemoveNATNetwork(ctx context.Context, name string) error {
	if err := requireName("network name", name); err != nil {
		return err
	}
	_, err := m.exec(ctx, 0, vmerr.CodeNetwork, "natnetwork", "remove", "--netname", name)
	return err
}

// ListAdapters reports the enabled adapters of a machine.
func (m *Manager) ListAdapters(ctx context.Context, vmName string) ([]Adapter, error) {
	if err := requireName("vm name", vmName); err != nil {
		return nil, err
	}
	out, err := m.exec(ctx, 0, vmerr.CodeCommandFailed, "showvminfo", vmName, "--machinereadable")
	if err != nil {
		return nil, err
	}
	props := parseMachineReadable(out)
	forwards := parseForwardings(out)

	var adapters []Adapter
	for i := 1; i <= MaxAdapterSlot+1; i++ {
		n := strconv.Itoa(i)
		kind, ok := props["nic"+n]
		if !ok || kind == "none" || kind == "" {
			continue
		}
		adapters = append(adapters, Adapter{
			Slot:           i - 1,
			Type:           kind,
			MACAddress:     props["macaddress"+n],
			CableConnected: props["cableconnected"+n] == "on",
			Attachment: firstNonEmpty(
				props["hostonlyadapter"+n],
				props["bridgeadapter"+n],
				props["intnet"+n],
				props["nat-network"+n],
			),
			PortForwards: forwards[i],
		})
	}
	return adapters, nil
}

// ConfigureAdapter sets adapter slot (0..7) to networkType. attachment
// names the host interface, internal network or NAT network where the type
// needs one.
func (m *Manager) ConfigureAdapter(ctx context.Context, vmName string, slot int, networkType, attachment string) error {
	if err := requireName("vm name", vmName); err != nil {
		return err
	}
	if slot < 0 || slot > MaxAdapterSlot {
		return vmerr.Validation("adapter slot must be between 0 and %d, got %d", MaxAdapterSlot, slot)
	}
	nicType, ok := AdapterTypes[strings.ToLower(networkType)]
	if !ok {
		return vmerr.Validation("network type %q not one of nat, bridged, hostonly, internal, natnetwork, none", networkType)
	}
	n := strconv.Itoa(slot + 1)
	args := []string{"modifyvm", vmName, "--nic" + n, nicType}
	switch nicType {
	case "bridged":
		if attachment == "" {
			return vmerr.Validation("bridged adapters need a host interface name")
		}
		args = append(args, "--bridgeadapter"+n, attachment)
	case "hostonly":
		if attachment == "" {
			return vmerr.Validation("host-only adapters need a host-only network name")
		}
		args = append(args, "--hostonlyadapter"+n, attachment)
	case "intnet":
		if attachment == "" {
			attachment = "intnet"
		}
		args = append(args, "--intnet"+n, attachment)
	case "natnetwork":
		if attachment == "" {
			return vmerr.Validation("natnetwork adapters need a NAT network name")
		}
		args = append(args, "--nat-network"+n, attachment)
	}
	_, err := m.exec(ctx, 0, vmerr.CodeNetwork, args...)
	return err
}

// PortForward is a NAT port forwarding rule.
type PortForward struct {
	Name      string
	Protocol  string
	HostIP    string
	HostPort  int
	GuestIP   string
	GuestPort int
}

func (p PortForward) validate() error {
	if strings.TrimSpace(p.Name) == "" || strings.ContainsAny(p.Name, ", ") {
		return vmerr.Validation("rule name is required and must not contain commas or spaces")
	}
	switch p.Protocol {
	case "tcp", "udp":
	default:
		return vmerr.Validation("protocol must be tcp or udp, got %q", p.Protocol)
	}
	if p.HostPort < 1 || p.HostPort > 65535 || p.GuestPort < 1 || p.GuestPort > 65535 {
		return vmerr.Validation("ports must be between 1 and 65535")
	}
	return nil
}

func (p PortForward) rule() string {
	return fmt.Sprintf("%s,%s,%s,%d,%s,%d", p.Name, p.Protocol, p.HostIP, p.HostPort, p.GuestIP, p.GuestPort)
}

// AddPortForward adds a NAT forwarding rule to adapter slot.
func (m *Manager) AddPortForward(ctx context.Context, vmName string, slot int, rule PortForward) error {
	if err := requireName("vm name", vmName); err != nil {
		return err
	}
	if slot < 0 || slot > MaxAdapterSlot {
		return vmerr.Validation("adapter slot must be between 0 and %d, got %d", MaxAdapterSlot, slot)
	}
	if rule.Protocol == "" {
		rule.Protocol = "tcp"
	}
	if err := rule.validate(); err != nil {
		return err
	}
	_, err := m.exec(ctx, 0, vmerr.CodeNetwork, "modifyvm", vmName, fmt.Sprintf("--natpf%d", slot+1), rule.rule())
	return err
}

// RemovePortForward deletes a NAT forwarding rule by name.
func (m *Manager) RemovePortForward(ctx context.Context, vmName string, slot int, name string) error {
	if err := requireName("vm name", vmName); err != nil {
		return err
	}
	if err := requireName("rule name", name); err != nil {
		return err
	}
	if slot < 0 || slot > MaxAdapterSlot {
		return vmerr.Validation("adapter slot must be between 0 and %d, got %d", MaxAdapterSlot, slot)
	}
	_, err := m.exec(ctx, 0, vmerr.CodeNetwork, "modifyvm", vmName, fmt.Sprintf("--natpf%d", slot+1), "delete", name)
	return err
}

func validateIPv4(ip, netmask string) error {
	if parsed := net.ParseIP(ip); parsed == nil || parsed.To4() == nil {
		return vmerr.Validation("invalid IPv4 address %q", ip)
	}
	if netmask != "" {
		if parsed := net.ParseIP(netmask); parsed == nil || parsed.To4() == nil {
			return vmerr.Validation("invalid netmask %q", netmask)
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
