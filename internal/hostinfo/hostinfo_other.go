//go:build !linux

package hostinfo

import (
	"fmt"
	"net"
)

func collectPlatform(info *Info) {
	ifaces, err := listInterfaces()
	if err != nil {
		info.Warnings = append(info.Warnings, err.Error())
		return
	}
	info.Interfaces = ifaces
}

// listInterfaces falls back to package net where netlink is unavailable.
func listInterfaces() ([]Interface, error) {
	netIfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	ifaces := make([]Interface, 0, len(netIfaces))
	for _, ni := range netIfaces {
		iface := Interface{
			Name: ni.Name,
			Type: "device",
			MTU:  ni.MTU,
			Up:   ni.Flags&net.FlagUp != 0,
			MAC:  ni.HardwareAddr.String(),
		}
		iface.State = "down"
		if iface.Up {
			iface.State = "up"
		}
		addrs, _ := ni.Addrs()
		for _, a := range addrs {
			iface.Addresses = append(iface.Addresses, a.String())
		}
		ifaces = append(ifaces, iface)
	}
	sortInterfaces(ifaces)
	return ifaces, nil
}
