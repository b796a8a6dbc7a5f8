package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cochaviz/virtmcp/internal/sandbox"
	"github.com/cochaviz/virtmcp/internal/winsandbox"
)

var (
	_ winsandbox.Store        = (*Store)(nil)
	_ sandbox.LeaseRepository = (*Store)(nil)
)

func (s *Store) SaveWindowsSandbox(ctx context.Context, rec winsandbox.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO windows_sandboxes (id, name, wsb_path, pid, status, memory_mb, created_at, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, wsb_path = excluded.wsb_path, pid = excluded.pid,
			status = excluded.status, memory_mb = excluded.memory_mb, started_at = excluded.started_at`,
		rec.ID, rec.Name, rec.WSBPath, rec.PID, rec.Status, rec.MemoryMB, formatTime(rec.CreatedAt), formatTime(rec.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("save windows sandbox %s: %w", rec.ID, err)
	}
	return nil
}

const windowsSandboxColumns = `id, name, wsb_path, pid, status, memory_mb, created_at, started_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWindowsSandbox(row rowScanner) (winsandbox.Record, error) {
	var rec winsandbox.Record
	var createdAt, startedAt string
	if err := row.Scan(&rec.ID, &rec.Name, &rec.WSBPath, &rec.PID, &rec.Status, &rec.MemoryMB, &createdAt, &startedAt); err != nil {
		return winsandbox.Record{}, err
	}
	var err error
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return winsandbox.Record{}, err
	}
	if rec.StartedAt, err = parseTime(startedAt); err != nil {
		return winsandbox.Record{}, err
	}
	return rec, nil
}

func (s *Store) GetWindowsSandbox(ctx context.Context, id string) (winsandbox.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+windowsSandboxColumns+` FROM windows_sandboxes WHERE id = ?`, id)
	rec, err := scanWindowsSandbox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return winsandbox.Record{}, fmt.Errorf("windows sandbox %s: %w", id, winsandbox.ErrNotFound)
	}
	if err != nil {
		return winsandbox.Record{}, fmt.Errorf("get windows sandbox %s: %w", id, err)
	}
	return rec, nil
}

func (s *Store) ListWindowsSandboxes(ctx context.Context) ([]winsandbox.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+windowsSandboxColumns+` FROM windows_sandboxes ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query windows sandboxes: %w", err)
	}
	defer rows.Close()

	records := []winsandbox.Record{}
	for rows.Next() {
		rec, err := scanWindowsSandbox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan windows sandbox: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate windows sandboxes: %w", err)
	}
	return records, nil
}

func (s *Store) DeleteWindowsSandbox(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM windows_sandboxes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete windows sandbox %s: %w", id, err)
	}
	return nil
}

func (s *Store) SaveLease(ctx context.Context, lease sandbox.Lease) error {
	spec, err := json.Marshal(lease.Specification)
	if err != nil {
		return fmt.Errorf("encode lease specification: %w", err)
	}
	metadata := lease.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode lease metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vm_sandboxes (id, name, source_vm, state, run_dir, network, share_iso, specification, metadata, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, source_vm = excluded.source_vm, state = excluded.state,
			run_dir = excluded.run_dir, network = excluded.network, share_iso = excluded.share_iso,
			specification = excluded.specification, metadata = excluded.metadata,
			start_time = excluded.start_time, end_time = excluded.end_time`,
		lease.ID, lease.Name, lease.Specification.SourceVM, lease.State, lease.RunDir, lease.Network, lease.ShareISO,
		string(spec), string(meta), formatTime(lease.StartTime), formatTime(lease.EndTime),
	)
	if err != nil {
		return fmt.Errorf("save lease %s: %w", lease.ID, err)
	}
	return nil
}

const leaseColumns = `id, name, state, run_dir, network, share_iso, specification, metadata, start_time, end_time`

func scanLease(row rowScanner) (sandbox.Lease, error) {
	var lease sandbox.Lease
	var spec, meta, start, end string
	if err := row.Scan(&lease.ID, &lease.Name, &lease.State, &lease.RunDir, &lease.Network, &lease.ShareISO, &spec, &meta, &start, &end); err != nil {
		return sandbox.Lease{}, err
	}
	if err := json.Unmarshal([]byte(spec), &lease.Specification); err != nil {
		return sandbox.Lease{}, fmt.Errorf("decode lease specification: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &lease.Metadata); err != nil {
		return sandbox.Lease{}, fmt.Errorf("decode lease metadata: %w", err)
	}
	var err error
	if lease.StartTime, err = parseTime(start); err != nil {
		return sandbox.Lease{}, err
	}
	if lease.EndTime, err = parseTime(end); err != nil {
		return sandbox.Lease{}, err
	}
	return lease, nil
}

func (s *Store) GetLease(ctx context.Context, leaseID string) (sandbox.Lease, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leaseColumns+` FROM vm_sandboxes WHERE id = ?`, leaseID)
	lease, err := scanLease(row)
	if errors.Is(err, sql.ErrNoRows) {
		return sandbox.Lease{}, fmt.Errorf("lease %s: %w", leaseID, sandbox.ErrLeaseNotFound)
	}
	if err != nil {
		return sandbox.Lease{}, fmt.Errorf("get lease %s: %w", leaseID, err)
	}
	return lease, nil
}

func (s *Store) ListLeases(ctx context.Context) ([]sandbox.Lease, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+leaseColumns+` FROM vm_sandboxes ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("query leases: %w", err)
	}
	defer rows.Close()

	leases := []sandbox.Lease{}
	for rows.Next() {
		lease, err := scanLease(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lease: %w", err)
		}
		leases = append(leases, lease)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leases: %w", err)
	}
	return leases, nil
}

func (s *Store) DeleteLease(ctx context.Context, leaseID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vm_sandboxes WHERE id = ?`, leaseID); err != nil {
		return fmt.Errorf("delete lease %s: %w", leaseID, err)
	}
	return nil
}
