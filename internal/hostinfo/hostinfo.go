// Package hostinfo collects facts about the machine the server runs on.
package hostinfo

import (
	"context"
	"os"
	"runtime"
	"slices"
	"strings"
)

type Interface struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	MAC       string   `json:"mac,omitempty"`
	MTU       int      `json:"mtu"`
	State     string   `json:"state"`
	Up        bool     `json:"up"`
	Addresses []string `json:"addresses,omitempty"`
}

type Info struct {
	Hostname      string      `json:"hostname"`
	OS            string      `json:"os"`
	Arch          string      `json:"arch"`
	KernelRelease string      `json:"kernel_release,omitempty"`
	KernelVersion string      `json:"kernel_version,omitempty"`
	CPUs          int         `json:"cpus"`
	TotalMemoryMB uint64      `json:"total_memory_mb,omitempty"`
	FreeMemoryMB  uint64      `json:"free_memory_mb,omitempty"`
	UptimeSeconds int64       `json:"uptime_seconds,omitempty"`
	Namespace     string      `json:"network_namespace,omitempty"`
	Interfaces    []Interface `json:"interfaces,omitempty"`
	Warnings      []string    `json:"warnings,omitempty"`
}

// Collect gathers host facts. Failures of individual lookups are reported
// in Warnings rather than failing the whole call.
func Collect(ctx context.Context) (Info, error) {
	info := portable()
	if err := ctx.Err(); err != nil {
		return info, err
	}
	collectPlatform(&info)
	return info, nil
}

// Interfaces lists host network interfaces, sorted by name.
func Interfaces(ctx context.Context) ([]Interface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return listInterfaces()
}

func portable() Info {
	hostname, _ := os.Hostname()
	return Info{
		Hostname: hostname,
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		CPUs:     runtime.NumCPU(),
	}
}

func sortInterfaces(ifaces []Interface) {
	slices.SortFunc(ifaces, func(a, b Interface) int { return strings.Compare(a.Name, b.Name) })
}
