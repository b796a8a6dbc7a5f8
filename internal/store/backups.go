package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cochaviz/virtmcp/internal/backup"
)

var _ backup.Repository = (*Store)(nil)

func (s *Store) SaveBackup(ctx context.Context, b backup.Backup) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backups (id, vm_name, description, path, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vm_name = excluded.vm_name, description = excluded.description,
			path = excluded.path, size_bytes = excluded.size_bytes`,
		b.ID, b.VMName, b.Description, b.Path, b.SizeBytes, formatTime(b.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save backup %s: %w", b.ID, err)
	}
	return nil
}

const backupColumns = `id, vm_name, description, path, size_bytes, created_at`

func scanBackup(row rowScanner) (backup.Backup, error) {
	var b backup.Backup
	var createdAt string
	if err := row.Scan(&b.ID, &b.VMName, &b.Description, &b.Path, &b.SizeBytes, &createdAt); err != nil {
		return backup.Backup{}, err
	}
	var err error
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return backup.Backup{}, err
	}
	return b, nil
}

func (s *Store) GetBackup(ctx context.Context, id string) (backup.Backup, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+backupColumns+` FROM backups WHERE id = ?`, id)
	b, err := scanBackup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return backup.Backup{}, fmt.Errorf("backup %s: %w", id, backup.ErrNotFound)
	}
	if err != nil {
		return backup.Backup{}, fmt.Errorf("get backup %s: %w", id, err)
	}
	return b, nil
}

// ListBackups returns the backups of vmName, or of every machine when it is
// empty, newest first.
func (s *Store) ListBackups(ctx context.Context, vmName string) ([]backup.Backup, error) {
	query := `SELECT ` + backupColumns + ` FROM backups`
	var args []any
	if vmName != "" {
		query += ` WHERE vm_name = ?`
		args = append(args, vmName)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query backups: %w", err)
	}
	defer rows.Close()

	backups := []backup.Backup{}
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		backups = append(backups, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backups: %w", err)
	}
	return backups, nil
}

func (s *Store) DeleteBackup(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete backup %s: %w", id, err)
	}
	return nil
}
