package sandbox

import (
	"context"
	"errors"
)

var ErrLeaseNotFound = errors.New("sandbox lease not found")

// LeaseRepository persists sandbox leases. Get returns an error wrapping
// ErrLeaseNotFound for unknown ids.
type LeaseRepository interface {
	SaveLease(ctx context.Context, lease Lease) error
	GetLease(ctx context.Context, leaseID string) (Lease, error)
	ListLeases(ctx context.Context) ([]Lease, error)
	DeleteLease(ctx context.Context, leaseID string) error
}
