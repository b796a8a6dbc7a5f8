//go:build linux

package hostinfo

import (
	"fmt"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

func collectPlatform(info *Info) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		info.Warnings = append(info.Warnings, fmt.Sprintf("uname: %v", err))
	} else {
		info.KernelRelease = unix.ByteSliceToString(uts.Release[:])
		info.KernelVersion = unix.ByteSliceToString(uts.Version[:])
	}

	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		info.Warnings = append(info.Warnings, fmt.Sprintf("sysinfo: %v", err))
	} else {
		info.TotalMemoryMB, info.FreeMemoryMB = memoryMB(uint64(si.Totalram), uint64(si.Freeram), uint64(si.Unit))
		info.UptimeSeconds = int64(si.Uptime)
	}

	if ns, err := netns.Get(); err != nil {
		info.Warnings = append(info.Warnings, fmt.Sprintf("netns: %v", err))
	} else {
		info.Namespace = ns.UniqueId()
		_ = ns.Close()
	}

	ifaces, err := listInterfaces()
	if err != nil {
		info.Warnings = append(info.Warnings, err.Error())
		return
	}
	info.Interfaces = ifaces
}

// memoryMB converts sysinfo's unit-scaled counters to megabytes.
func memoryMB(total, free, unit uint64) (uint64, uint64) {
	if unit == 0 {
		unit = 1
	}
	const mb = 1024 * 1024
	return total * unit / mb, free * unit / mb
}

func listInterfaces() ([]Interface, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	ifaces := make([]Interface, 0, len(links))
	for _, link := range links {
		attrs := link.Attrs()
		iface := Interface{
			Name:  attrs.Name,
			Type:  link.Type(),
			MTU:   attrs.MTU,
			State: attrs.OperState.String(),
			Up:    attrs.Flags&unix.IFF_UP != 0,
		}
		if len(attrs.HardwareAddr) > 0 {
			iface.MAC = attrs.HardwareAddr.String()
		}
		addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
		if err != nil {
			return nil, fmt.Errorf("list addresses of %s: %w", attrs.Name, err)
		}
		for _, addr := range addrs {
			if addr.IPNet != nil {
				iface.Addresses = append(iface.Addresses, addr.IPNet.String())
			}
		}
		ifaces = append(ifaces, iface)
	}
	sortInterfaces(ifaces)
	return ifaces, nil
}
