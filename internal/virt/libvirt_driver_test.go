package virt

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	libvirt "libvirt.org/go/libvirt"

	"github.com/cochaviz/virtmcp/internal/vm"
	"github.com/cochaviz/virtmcp/internal/vmerr"
)

func TestMapState(t *testing.T) {
	cases := map[libvirt.DomainState]vm.State{
		libvirt.DOMAIN_RUNNING:     vm.StateRunning,
		libvirt.DOMAIN_BLOCKED:     vm.StateRunning,
		libvirt.DOMAIN_PAUSED:      vm.StatePaused,
		libvirt.DOMAIN_SHUTDOWN:    vm.StateStopping,
		libvirt.DOMAIN_SHUTOFF:     vm.StatePoweredOff,
		libvirt.DOMAIN_CRASHED:     vm.StateAborted,
		libvirt.DOMAIN_NOSTATE:     vm.StateUnknown,
		libvirt.DOMAIN_PMSUSPENDED: vm.StatePaused,
	}
	for in, want := range cases {
		assert.Equal(t, want, mapState(in), stateLabel(in))
	}
}

func TestClassifyLibvirtErrors(t *testing.T) {
	assert.NoError(t, classify("op", nil))

	err := classify("libvirt.start", libvirt.Error{Code: libvirt.ERR_NO_DOMAIN, Message: "Domain not found"})
	assert.Equal(t, vmerr.CodeVMNotFound, vmerr.CodeOf(err))
	assert.Contains(t, err.Error(), "Domain not found")

	err = classify("libvirt.pause", libvirt.Error{Code: libvirt.ERR_OPERATION_INVALID, Message: "domain is not running"})
	assert.Equal(t, vmerr.CodeInvalidState, vmerr.CodeOf(err))

	err = classify("libvirt.start", errors.New("boom"))
	assert.Equal(t, vmerr.CodeCommandFailed, vmerr.CodeOf(err))

	err = snapshotError("libvirt.restore", libvirt.Error{Code: libvirt.ERR_INTERNAL_ERROR, Message: "revert failed"})
	assert.Equal(t, vmerr.CodeSnapshot, vmerr.CodeOf(err))
	err = snapshotError("libvirt.restore", libvirt.Error{Code: libvirt.ERR_NO_DOMAIN_SNAPSHOT, Message: "no snapshot"})
	assert.Equal(t, vmerr.CodeSnapshot, vmerr.CodeOf(err))
}

func TestSnapshotDefinitionEscapesText(t *testing.T) {
	def, err := snapshotDefinition("clean", "before <install> & reboot")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(def, "<domainsnapshot>"))
	assert.Contains(t, def, "<name>clean</name>")
	assert.Contains(t, def, "before &lt;install&gt; &amp; reboot")
	assert.NotContains(t, def, "creationTime")
}

func TestParseSnapshotXML(t *testing.T) {
	snap, err := parseSnapshotXML(`<domainsnapshot>
  <name>tools</name>
  <description>after tooling</description>
  <state>running</state>
  <parent><name>base</name></parent>
  <creationTime>1700000000</creationTime>
  <domain type="kvm"><name>alpha</name></domain>
</domainsnapshot>`, true)
	require.NoError(t, err)
	assert.Equal(t, "tools", snap.Name)
	assert.Equal(t, "base", snap.Parent)
	assert.Equal(t, "after tooling", snap.Description)
	assert.True(t, snap.Current)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), snap.CreatedAt)

	_, err = parseSnapshotXML("<not-xml", false)
	assert.Error(t, err)
}

func TestSortSnapshotsByCreation(t *testing.T) {
	snaps := []vm.Snapshot{
		{Name: "late", CreatedAt: time.Unix(300, 0)},
		{Name: "b", CreatedAt: time.Unix(100, 0)},
		{Name: "a", CreatedAt: time.Unix(100, 0)},
	}
	sortSnapshots(snaps)
	assert.Equal(t, "a", snaps[0].Name)
	assert.Equal(t, "b", snaps[1].Name)
	assert.Equal(t, "late", snaps[2].Name)
}

func TestUnsupportedOperations(t *testing.T) {
	d := NewLibvirtDriver("", time.Second, nil)
	assert.Equal(t, DefaultConnectionURI, d.ConnectionURI)
	assert.Equal(t, "libvirt", d.Name())

	_, err := d.CreateVM(context.Background(), vm.CreateOptions{Name: "x"})
	assert.Equal(t, vmerr.CodeUnsupported, vmerr.CodeOf(err))
	err = d.CloneVM(context.Background(), vm.CloneOptions{Source: "a", Name: "b"})
	assert.Equal(t, vmerr.CodeUnsupported, vmerr.CodeOf(err))
}

func TestValidationPrecedesConnection(t *testing.T) {
	d := NewLibvirtDriver("test:///nonexistent", time.Second, nil)
	ctx := context.Background()
	assert.Equal(t, vmerr.CodeValidation, vmerr.CodeOf(d.StartVM(ctx, " ", "")))
	assert.Equal(t, vmerr.CodeValidation, vmerr.CodeOf(d.TakeSnapshot(ctx, "alpha", "", "", false)))
	assert.Equal(t, vmerr.CodeValidation, vmerr.CodeOf(d.RestoreSnapshot(ctx, "", "clean")))
}

func TestParseNetworkXML(t *testing.T) {
	n, err := parseNetworkXML(`<network>
  <name>lab_net</name>
  <uuid>0b9f1e8a-0000-4000-8000-000000000001</uuid>
  <forward mode='nat'/>
  <bridge name='virbr1' stp='on' delay='0'/>
  <ip address='10.13.37.1' netmask='255.255.255.0'>
    <dhcp>
      <range start='10.13.37.100' end='10.13.37.200'/>
      <host mac='52:54:00:AA:BB:CC' ip='10.13.37.10' name='sensor'/>
      <host mac='52:54:00:aa:bb:cd' ip='not-an-ip'/>
    </dhcp>
  </ip>
  <ip family='ipv6' address='fd00::1' prefix='64'>
    <dhcp><range start='fd00::100' end='fd00::1ff'/></dhcp>
  </ip>
</network>`)
	require.NoError(t, err)
	assert.Equal(t, "lab_net", n.Name)
	assert.Equal(t, "virbr1", n.Bridge)
	assert.Equal(t, "nat", n.Forward)
	assert.Equal(t, []string{"10.13.37.1/24", "fd00::1/64"}, n.Addresses)
	assert.Equal(t, []string{"10.13.37.100-10.13.37.200"}, n.DHCPRanges)
	require.Len(t, n.PinnedHosts, 1)
	assert.Equal(t, DHCPLease{MAC: "52:54:00:aa:bb:cc", IP: "10.13.37.10", Hostname: "sensor"}, n.PinnedHosts[0])
}

func TestNetworkErrorCategory(t *testing.T) {
	err := networkError("libvirt.network_leases", libvirt.Error{Code: libvirt.ERR_NO_NETWORK, Message: "Network not found"})
	assert.Equal(t, vmerr.CodeNetwork, vmerr.CodeOf(err))
	assert.True(t, isInLibvirtErrors(libvirt.Error{Code: libvirt.ERR_NO_DOMAIN}, libvirt.ERR_NO_DOMAIN))
	assert.False(t, isInLibvirtErrors(nil, libvirt.ERR_NO_DOMAIN))
	assert.Equal(t, vmerr.CodeValidation, vmerr.CodeOf(func() error {
		_, err := NewLibvirtDriver("", time.Second, nil).NetworkLeases(context.Background(), " ")
		return err
	}()))
}
