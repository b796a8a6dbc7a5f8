package vbox

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/cochaviz/virtmcp/internal/vm"
	"github.com/cochaviz/virtmcp/internal/vmerr"
)

// TakeSnapshot records the machine's current state under name.
func (m *Manager) TakeSnapshot(ctx context.Context, vmName, name, description string, live bool) error {
	if err := requireSnapshotArgs(vmName, name); err != nil {
		return err
	}
	args := []string{"snapshot", vmName, "take", name}
	if description != "" {
		args = append(args, "--description", description)
	}
	if live {
		args = append(args, "--live")
	}
	_, err := m.exec(ctx, m.Timeouts.Snapshot, vmerr.CodeSnapshot, args...)
	return err
}

// RestoreSnapshot rolls the machine back to the named snapshot.
func (m *Manager) RestoreSnapshot(ctx context.Context, vmName, name string) error {
	if err := requireSnapshotArgs(vmName, name); err != nil {
		return err
	}
	_, err := m.exec(ctx, m.Timeouts.Snapshot, vmerr.CodeSnapshot, "snapshot", vmName, "restore", name)
	return err
}

// DeleteSnapshot removes the named snapshot, merging its differencing disks.
func (m *Manager) DeleteSnapshot(ctx context.Context, vmName, name string) error {
	if err := requireSnapshotArgs(vmName, name); err != nil {
		return err
	}
	_, err := m.exec(ctx, m.Timeouts.Snapshot, vmerr.CodeSnapshot, "snapshot", vmName, "delete", name)
	return err
}

// ListSnapshots returns the snapshot tree flattened in depth-first order.
func (m *Manager) ListSnapshots(ctx context.Context, vmName string) ([]vm.Snapshot, error) {
	if err := requireName("vm name", vmName); err != nil {
		return nil, err
	}
	out, err := m.exec(ctx, 0, vmerr.CodeSnapshot, "snapshot", vmName, "list", "--machinereadable")
	if err != nil {
		if strings.Contains(err.Error(), "does not have any snapshots") {
			return []vm.Snapshot{}, nil
		}
		return nil, err
	}
	return parseSnapshots(parseMachineReadable(out)), nil
}

func requireSnapshotArgs(vmName, name string) error {
	if err := requireName("vm name", vmName); err != nil {
		return err
	}
	return requireName("snapshot name", name)
}

// parseSnapshots rebuilds the tree from keys such as SnapshotName-1-2,
// where each "-N" suffix segment descends one level.
func parseSnapshots(props map[string]string) []vm.Snapshot {
	var suffixes []string
	for key := range props {
		if suffix, ok := strings.CutPrefix(key, "SnapshotName"); ok {
			suffixes = append(suffixes, suffix)
		}
	}
	slices.SortFunc(suffixes, compareSnapshotSuffix)

	currentNode := strings.TrimPrefix(props["CurrentSnapshotNode"], "SnapshotName")
	currentName := props["CurrentSnapshotName"]

	snapshots := make([]vm.Snapshot, 0, len(suffixes))
	for _, suffix := range suffixes {
		s := vm.Snapshot{
			Name:        props["SnapshotName"+suffix],
			UUID:        props["SnapshotUUID"+suffix],
			Description: props["SnapshotDescription"+suffix],
		}
		if idx := strings.LastIndex(suffix, "-"); idx >= 0 {
			s.Parent = props["SnapshotName"+suffix[:idx]]
		}
		if _, ok := props["CurrentSnapshotNode"]; ok {
			s.Current = suffix == currentNode
		} else {
			s.Current = s.Name == currentName
		}
		snapshots = append(snapshots, s)
	}
	return snapshots
}

func compareSnapshotSuffix(a, b string) int {
	as := strings.Split(strings.TrimPrefix(a, "-"), "-")
	bs := strings.Split(strings.TrimPrefix(b, "-"), "-")
	if a == "" {
		as = nil
	}
	if b == "" {
		bs = nil
	}
	for i := 0; i < len(as) && i < len(bs); i++ {
		ai, _ := strconv.Atoi(as[i])
		bi, _ := strconv.Atoi(bs[i])
		if ai != bi {
			return ai - bi
		}
	}
	return len(as) - len(bs)
}
