package virt

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	libvirt "libvirt.org/go/libvirt"

	"github.com/cochaviz/virtmcp/internal/vm"
	"github.com/cochaviz/virtmcp/internal/vmerr"
)

type snapshotXML struct {
	XMLName      xml.Name        `xml:"domainsnapshot"`
	Name         string          `xml:"name"`
	Description  string          `xml:"description,omitempty"`
	CreationTime int64           `xml:"creationTime,omitempty"`
	Parent       *snapshotParent `xml:"parent,omitempty"`
}

type snapshotParent struct {
	Name string `xml:"name"`
}

func snapshotDefinition(name, description string) (string, error) {
	data, err := xml.Marshal(snapshotXML{Name: name, Description: description})
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot definition: %w", err)
	}
	return string(data), nil
}

func parseSnapshotXML(desc string, current bool) (vm.Snapshot, error) {
	var doc snapshotXML
	if err := xml.Unmarshal([]byte(desc), &doc); err != nil {
		return vm.Snapshot{}, fmt.Errorf("failed to parse snapshot xml: %w", err)
	}
	snap := vm.Snapshot{
		Name:        doc.Name,
		Description: doc.Description,
		Current:     current,
	}
	if doc.Parent != nil {
		snap.Parent = doc.Parent.Name
	}
	if doc.CreationTime > 0 {
		snap.CreatedAt = time.Unix(doc.CreationTime, 0).UTC()
	}
	return snap, nil
}

func requireSnapshotArgs(vmName, name string) error {
	if strings.TrimSpace(vmName) == "" {
		return vmerr.Validation("vm name is required")
	}
	if strings.TrimSpace(name) == "" {
		return vmerr.Validation("snapshot name is required")
	}
	return nil
}

// TakeSnapshot creates an internal snapshot. Live snapshots are the libvirt
// default for running domains, so live is ignored.
func (d *LibvirtDriver) TakeSnapshot(ctx context.Context, vmName, name, description string, live bool) error {
	if err := requireSnapshotArgs(vmName, name); err != nil {
		return err
	}
	def, err := snapshotDefinition(name, description)
	if err != nil {
		return vmerr.Wrap(vmerr.CodeSnapshot, "libvirt.snapshot", err)
	}
	return d.withDomain("libvirt.snapshot", vmName, func(domain *libvirt.Domain) error {
		snap, err := domain.CreateSnapshotXML(def, 0)
		if err != nil {
			return snapshotError("libvirt.snapshot", err)
		}
		snap.Free()
		return nil
	})
}

func (d *LibvirtDriver) RestoreSnapshot(ctx context.Context, vmName, name string) error {
	if err := requireSnapshotArgs(vmName, name); err != nil {
		return err
	}
	return d.withSnapshot("libvirt.restore", vmName, name, func(snap *libvirt.DomainSnapshot) error {
		return snapshotError("libvirt.restore", snap.RevertToSnapshot(0))
	})
}

func (d *LibvirtDriver) DeleteSnapshot(ctx context.Context, vmName, name string) error {
	if err := requireSnapshotArgs(vmName, name); err != nil {
		return err
	}
	return d.withSnapshot("libvirt.delete_snapshot", vmName, name, func(snap *libvirt.DomainSnapshot) error {
		return snapshotError("libvirt.delete_snapshot", snap.Delete(0))
	})
}

func (d *LibvirtDriver) withSnapshot(op, vmName, name string, fn func(*libvirt.DomainSnapshot) error) error {
	return d.withDomain(op, vmName, func(domain *libvirt.Domain) error {
		snap, err := domain.SnapshotLookupByName(name, 0)
		if err != nil {
			return snapshotError(op, err)
		}
		defer snap.Free()
		return fn(snap)
	})
}

// ListSnapshots returns snapshots ordered by creation time.
func (d *LibvirtDriver) ListSnapshots(ctx context.Context, vmName string) ([]vm.Snapshot, error) {
	var out []vm.Snapshot
	err := d.withDomain("libvirt.list_snapshots", vmName, func(domain *libvirt.Domain) error {
		snaps, err := domain.ListAllSnapshots(0)
		if err != nil {
			return snapshotError("libvirt.list_snapshots", err)
		}
		out = make([]vm.Snapshot, 0, len(snaps))
		for i := range snaps {
			snap := &snaps[i]
			desc, err := snap.GetXMLDesc(0)
			if err != nil {
				snap.Free()
				return snapshotError("libvirt.list_snapshots", err)
			}
			current, _ := snap.IsCurrent(0)
			snap.Free()
			parsed, err := parseSnapshotXML(desc, current)
			if err != nil {
				return vmerr.Wrap(vmerr.CodeSnapshot, "libvirt.list_snapshots", err)
			}
			out = append(out, parsed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortSnapshots(out)
	return out, nil
}

func sortSnapshots(snaps []vm.Snapshot) {
	slices.SortStableFunc(snaps, func(a, b vm.Snapshot) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
}

// snapshotError classifies like classify but defaults to the snapshot
// category rather than a generic command failure.
func snapshotError(op string, err error) error {
	classified := classify(op, err)
	var e *vmerr.Error
	if errors.As(classified, &e) && e.Code == vmerr.CodeCommandFailed {
		e.Code = vmerr.CodeSnapshot
	}
	return classified
}
