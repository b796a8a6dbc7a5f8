package vbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cochaviz/virtmcp/internal/vmerr"
)

func TestParseMachineReadableHandlesQuotedKeys(t *testing.T) {
	props := parseMachineReadable(`name="alpha"
memory=2048
"SATA-0-0"="/vms/alpha/alpha_disk.vdi"
"SATA-ImageUUID-0-0"="1234"
description="has = sign"
garbage line
`)
	assert.Equal(t, "alpha", props["name"])
	assert.Equal(t, "2048", props["memory"])
	assert.Equal(t, "/vms/alpha/alpha_disk.vdi", props["SATA-0-0"])
	assert.Equal(t, "1234", props["SATA-ImageUUID-0-0"])
	assert.Equal(t, "has = sign", props["description"])
	assert.NotContains(t, props, "garbage line")
}

func TestParseColonBlocks(t *testing.T) {
	blocks := parseColonBlocks(`Name:            vboxnet0
GUID:            786f6276-656e-4074-8000-0a0027000000
IPAddress:       192.168.56.1

Name:            vboxnet1
IPAddress:       192.168.57.1
`)
	require.Len(t, blocks, 2)
	assert.Equal(t, "vboxnet0", blocks[0]["Name"])
	assert.Equal(t, "192.168.56.1", blocks[0]["IPAddress"])
	assert.Equal(t, "vboxnet1", blocks[1]["Name"])
}

func TestParseSnapshotsTree(t *testing.T) {
	snaps := parseSnapshots(parseMachineReadable(`SnapshotName="base"
SnapshotUUID="u0"
SnapshotName-1="updated"
SnapshotUUID-1="u1"
SnapshotDescription-1="after apt upgrade"
SnapshotName-1-1="tools"
SnapshotUUID-1-1="u11"
SnapshotName-2="branch"
SnapshotUUID-2="u2"
SnapshotName-10="late"
SnapshotUUID-10="u10"
CurrentSnapshotName="tools"
CurrentSnapshotUUID="u11"
CurrentSnapshotNode="SnapshotName-1-1"
`))
	require.Len(t, snaps, 5)
	names := []string{snaps[0].Name, snaps[1].Name, snaps[2].Name, snaps[3].Name, snaps[4].Name}
	assert.Equal(t, []string{"base", "updated", "tools", "branch", "late"}, names)
	assert.Equal(t, "", snaps[0].Parent)
	assert.Equal(t, "base", snaps[1].Parent)
	assert.Equal(t, "updated", snaps[2].Parent)
	assert.Equal(t, "after apt upgrade", snaps[1].Description)
	assert.True(t, snaps[2].Current)
	assert.False(t, snaps[0].Current)
}

func TestListSnapshotsEmpty(t *testing.T) {
	m, _ := newTestManager(t,
		call("snapshot", "alpha", "list", "--machinereadable").failing("This machine does not have any snapshots"),
	)
	snaps, err := m.ListSnapshots(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestSnapshotCommands(t *testing.T) {
	m, seq := newTestManager(t,
		call("snapshot", "alpha", "take", "clean", "--description", "fresh install", "--live"),
		call("snapshot", "alpha", "restore", "clean"),
		call("snapshot", "alpha", "delete", "clean").failing("VBoxManage: error: Could not find a snapshot named 'clean'"),
	)
	ctx := context.Background()
	require.NoError(t, m.TakeSnapshot(ctx, "alpha", "clean", "fresh install", true))
	require.NoError(t, m.RestoreSnapshot(ctx, "alpha", "clean"))
	err := m.DeleteSnapshot(ctx, "alpha", "clean")
	assert.Equal(t, vmerr.CodeSnapshot, vmerr.CodeOf(err))
	seq.assertDone()

	assert.Equal(t, vmerr.CodeValidation, vmerr.CodeOf(m.TakeSnapshot(ctx, "alpha", " ", "", false)))
}

func TestParseMetrics(t *testing.T) {
	metrics := parseMetrics(`Object          Metric                                   Values
--------------- ---------------------------------------- --------------------------------------------
alpha           CPU/Load/User                            2.00%
alpha           RAM/Usage/Used                           1048576 kB
`)
	require.Len(t, metrics, 2)
	assert.Equal(t, "CPU/Load/User", metrics[0].Name)
	assert.Equal(t, "1048576 kB", metrics[1].Value)
}

func TestSystemQueries(t *testing.T) {
	m, seq := newTestManager(t,
		call("--version").out("7.0.14r161095\n"),
		call("list", "ostypes").out(`ID:          Ubuntu_64
Description: Ubuntu (64-bit)
Family ID:   Linux
Family Desc: Linux
64 bit:      true

ID:          Windows10
Description: Windows 10 (32-bit)
Family ID:   Windows
64 bit:      false
`),
		call("list", "extpacks").out(`Extension Packs: 1
Pack no. 0:   Oracle VM VirtualBox Extension Pack
Version:      7.0.14
Usable:       true
`),
		call("list", "hostinfo").out("Host Information:\n\nProcessor count: 8\nMemory size: 32000 MByte\n"),
	)
	ctx := context.Background()

	version, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "7.0.14r161095", version)

	types, err := m.OSTypes(ctx)
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.True(t, types[0].Is64Bit)
	assert.Equal(t, "Windows", types[1].FamilyID)

	packs, err := m.ExtPacks(ctx)
	require.NoError(t, err)
	require.Len(t, packs, 1)
	assert.Equal(t, "Oracle VM VirtualBox Extension Pack", packs[0].Name)
	assert.True(t, packs[0].Usable)

	info, err := m.HostInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "8", info["Processor count"])
	seq.assertDone()
}
