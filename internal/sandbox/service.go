package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cochaviz/virtmcp/internal/logging"
	"github.com/cochaviz/virtmcp/internal/vmerr"
)

// Service tracks sandbox leases in a repository on top of a Driver.
type Service struct {
	Driver Driver
	Leases LeaseRepository
	Logger *slog.Logger
}

func NewService(driver Driver, leases LeaseRepository, logger *slog.Logger) *Service {
	return &Service{
		Driver: driver,
		Leases: leases,
		Logger: logging.Ensure(logger).With("component", "sandbox"),
	}
}

// Create acquires a sandbox and, when start is set, boots it. A sandbox
// that fails to boot is destroyed before the error is returned.
func (s *Service) Create(ctx context.Context, spec LeaseSpecification, start bool) (Lease, error) {
	lease, err := s.Driver.Acquire(ctx, spec)
	if err != nil {
		return Lease{}, err
	}
	if start {
		started, err := s.Driver.Start(ctx, lease)
		if err != nil {
			destroyErr := s.Driver.Destroy(context.WithoutCancel(ctx), lease, true)
			return Lease{}, errors.Join(err, destroyErr)
		}
		lease = started
	}
	if err := s.Leases.SaveLease(ctx, lease); err != nil {
		return lease, vmerr.Wrap(vmerr.CodeSandbox, "sandbox.save", err)
	}
	return lease, nil
}

func (s *Service) Get(ctx context.Context, id string) (Lease, error) {
	if strings.TrimSpace(id) == "" {
		return Lease{}, vmerr.Validation("sandbox id is required")
	}
	lease, err := s.Leases.GetLease(ctx, id)
	if errors.Is(err, ErrLeaseNotFound) {
		return Lease{}, vmerr.New(vmerr.CodeSandbox, "sandbox.get", "sandbox %s not found", id)
	}
	if err != nil {
		return Lease{}, vmerr.Wrap(vmerr.CodeSandbox, "sandbox.get", err)
	}
	return lease, nil
}

func (s *Service) List(ctx context.Context) ([]Lease, error) {
	leases, err := s.Leases.ListLeases(ctx)
	if err != nil {
		return nil, vmerr.Wrap(vmerr.CodeSandbox, "sandbox.list", err)
	}
	return leases, nil
}

// Destroy removes the sandbox machine and forgets the lease.
func (s *Service) Destroy(ctx context.Context, id string, force bool) error {
	lease, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Driver.Destroy(ctx, lease, force); err != nil {
		return err
	}
	if err := s.Leases.DeleteLease(ctx, id); err != nil {
		return vmerr.Wrap(vmerr.CodeSandbox, "sandbox.delete", fmt.Errorf("forget lease %s: %w", id, err))
	}
	return nil
}
