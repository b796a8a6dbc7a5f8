package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cochaviz/virtmcp/internal/logging"
)

// SandboxWorker owns a single lease for the lifetime of Run. Only one
// worker may drive a particular sandbox.
type SandboxWorker struct {
	lease  Lease
	driver Driver
	logger *slog.Logger

	started chan Lease
}

// NewSandboxWorker creates a new SandboxWorker for an acquired lease.
func NewSandboxWorker(driver Driver, lease Lease, logger *slog.Logger) *SandboxWorker {
	return &SandboxWorker{
		driver:  driver,
		lease:   lease,
		logger:  logging.Ensure(logger).With("component", "sandbox-worker", "lease", lease.ID),
		started: make(chan Lease, 1),
	}
}

// Started delivers the running lease once the machine has booted.
func (w *SandboxWorker) Started() <-chan Lease {
	return w.started
}

// Run starts the sandbox and blocks until ctx ends. The lease is always
// destroyed on the way out, including when the start fails.
func (w *SandboxWorker) Run(ctx context.Context) (err error) {
	if w.driver == nil {
		return fmt.Errorf("driver not initialized")
	}
	if w.lease.ID == "" {
		return fmt.Errorf("lease not initialized")
	}

	defer func() {
		if destroyErr := w.driver.Destroy(context.WithoutCancel(ctx), w.lease, true); destroyErr != nil {
			err = errors.Join(err, fmt.Errorf("destroy sandbox: %w", destroyErr))
		}
	}()

	updatedLease, err := w.driver.Start(ctx, w.lease)
	if err != nil {
		return err
	}
	w.lease = updatedLease
	w.started <- updatedLease
	w.logger.Info("sandbox running, waiting for shutdown", "vm", w.lease.Name)

	<-ctx.Done()
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}
