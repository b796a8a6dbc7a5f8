package sandbox

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cochaviz/virtmcp/internal/vmerr"
)

type memLeases struct {
	leases map[string]Lease
}

func (m *memLeases) SaveLease(_ context.Context, lease Lease) error {
	if m.leases == nil {
		m.leases = map[string]Lease{}
	}
	m.leases[lease.ID] = lease
	return nil
}

func (m *memLeases) GetLease(_ context.Context, id string) (Lease, error) {
	lease, ok := m.leases[id]
	if !ok {
		return Lease{}, fmt.Errorf("lease %s: %w", id, ErrLeaseNotFound)
	}
	return lease, nil
}

func (m *memLeases) ListLeases(context.Context) ([]Lease, error) {
	out := make([]Lease, 0, len(m.leases))
	for _, l := range m.leases {
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b Lease) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *memLeases) DeleteLease(_ context.Context, id string) error {
	delete(m.leases, id)
	return nil
}

func TestServiceCreateListDestroy(t *testing.T) {
	driver := &stubSandboxDriver{}
	repo := &memLeases{}
	svc := NewService(driver, repo, discardLogger())
	ctx := context.Background()

	lease, err := svc.Create(ctx, LeaseSpecification{SourceVM: "base"}, true)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, lease.State)

	leases, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, leases, 1)
	assert.Equal(t, lease.ID, leases[0].ID)

	require.NoError(t, svc.Destroy(ctx, lease.ID, true))
	assert.Empty(t, repo.leases)
	assert.Equal(t, []bool{true}, driver.destroyForce)
}

func TestServiceCreateWithoutStart(t *testing.T) {
	driver := &stubSandboxDriver{}
	svc := NewService(driver, &memLeases{}, discardLogger())
	lease, err := svc.Create(context.Background(), LeaseSpecification{SourceVM: "base"}, false)
	require.NoError(t, err)
	assert.Equal(t, StatePending, lease.State)
	assert.Empty(t, driver.started)
}

func TestServiceCreateDestroysWhenStartFails(t *testing.T) {
	driver := &stubSandboxDriver{startErr: vmerr.New(vmerr.CodeInvalidState, "vbox.startvm", "locked")}
	repo := &memLeases{}
	svc := NewService(driver, repo, discardLogger())
	_, err := svc.Create(context.Background(), LeaseSpecification{SourceVM: "base"}, true)
	assert.Equal(t, vmerr.CodeInvalidState, vmerr.CodeOf(err))
	assert.Equal(t, []string{"lease-1"}, driver.destroyed)
	assert.Empty(t, repo.leases)
}

func TestServiceUnknownLease(t *testing.T) {
	svc := NewService(&stubSandboxDriver{}, &memLeases{}, discardLogger())
	err := svc.Destroy(context.Background(), "missing", false)
	assert.Equal(t, vmerr.CodeSandbox, vmerr.CodeOf(err))
	assert.Contains(t, err.Error(), "not found")

	_, err = svc.Get(context.Background(), " ")
	assert.Equal(t, vmerr.CodeValidation, vmerr.CodeOf(err))
}
