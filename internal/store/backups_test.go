package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cochaviz/virtmcp/internal/backup"
)

func TestBackupRecords(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	older := backup.Backup{ID: "b1", VMName: "web", Description: "weekly", Path: "/b/web-1.ova", SizeBytes: 1 << 30, CreatedAt: base}
	newer := backup.Backup{ID: "b2", VMName: "web", Path: "/b/web-2.ova", CreatedAt: base.Add(500 * time.Millisecond)}
	db := backup.Backup{ID: "b3", VMName: "db", Path: "/b/db-1.ova", CreatedAt: base.Add(time.Hour)}
	for _, b := range []backup.Backup{older, newer, db} {
		require.NoError(t, s.SaveBackup(ctx, b))
	}

	got, err := s.GetBackup(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "weekly", got.Description)
	assert.Equal(t, int64(1<<30), got.SizeBytes)
	assert.True(t, base.Equal(got.CreatedAt))

	web, err := s.ListBackups(ctx, "web")
	require.NoError(t, err)
	require.Len(t, web, 2)
	assert.Equal(t, "b2", web[0].ID)
	assert.Equal(t, "b1", web[1].ID)

	all, err := s.ListBackups(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b3", all[0].ID)

	require.NoError(t, s.DeleteBackup(ctx, "b1"))
	_, err = s.GetBackup(ctx, "b1")
	assert.ErrorIs(t, err, backup.ErrNotFound)

	none, err := s.ListBackups(ctx, "mail")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
