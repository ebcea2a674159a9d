package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edukit/coursebot-api/internal/models"
	appErrors "github.com/edukit/coursebot-api/pkg/errors"
)

type backupStateStub struct {
	state models.BackupState
}

func (b *backupStateStub) State(ctx context.Context) (*models.BackupState, error) {
	copy := b.state
	return &copy, nil
}

func (b *backupStateStub) MarkFull(ctx context.Context, ts int64) error {
	b.state.LastFullTS = ts
	b.state.LastIncrementalTS = ts
	b.state.UpdatedAt = ts
	return nil
}

func (b *backupStateStub) MarkIncremental(ctx context.Context, ts int64) error {
	b.state.LastIncrementalTS = ts
	b.state.UpdatedAt = ts
	return nil
}

func newBackupService(t *testing.T, store *backupStateStub) *BackupService {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "app.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("database"), 0o600))
	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, ".blobs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, ".blobs", "abc"), []byte("blob"), 0o600))

	return NewBackupService(store, &auditStub{}, nil, BackupServiceConfig{
		Dir:          filepath.Join(dir, "backup"),
		DatabasePath: dbPath,
		DataDir:      dataDir,
		FullMaxAge:   24 * time.Hour,
		IncMaxAge:    time.Hour,
	})
}

func TestBackupFreshWindows(t *testing.T) {
	store := &backupStateStub{}
	svc := newBackupService(t, store)
	ctx := context.Background()

	// No backups at all.
	err := svc.Fresh(ctx)
	require.Equal(t, appErrors.ErrBackupStale.Code, appErrors.FromError(err).Code)

	now := time.Now().UTC().Unix()

	// Fresh full, stale incremental.
	store.state = models.BackupState{LastFullTS: now - 3600, LastIncrementalTS: now - 7200}
	err = svc.Fresh(ctx)
	require.Equal(t, appErrors.ErrBackupStale.Code, appErrors.FromError(err).Code)

	// Stale full, fresh incremental.
	store.state = models.BackupState{LastFullTS: now - 100000, LastIncrementalTS: now - 60}
	err = svc.Fresh(ctx)
	require.Equal(t, appErrors.ErrBackupStale.Code, appErrors.FromError(err).Code)

	// Both windows hold.
	store.state = models.BackupState{LastFullTS: now - 3600, LastIncrementalTS: now - 60}
	require.NoError(t, svc.Fresh(ctx))
}

func TestBackupRunFullArchivesDataDir(t *testing.T) {
	store := &backupStateStub{}
	svc := newBackupService(t, store)

	result, err := svc.Run(context.Background(), teacherClaims(), models.BackupFull)
	require.NoError(t, err)
	require.Equal(t, models.BackupFull, result.Type)
	require.GreaterOrEqual(t, result.Objects, 2)
	require.Positive(t, result.SizeBytes)
	require.FileExists(t, result.ArchivePath)
	require.NotZero(t, store.state.LastFullTS)
	require.Equal(t, store.state.LastFullTS, store.state.LastIncrementalTS)
}

func TestBackupRunAutoPicksType(t *testing.T) {
	store := &backupStateStub{}
	svc := newBackupService(t, store)
	ctx := context.Background()

	// No full backup yet: auto runs a full one.
	result, err := svc.Run(ctx, teacherClaims(), models.BackupAuto)
	require.NoError(t, err)
	require.Equal(t, models.BackupFull, result.Type)

	// Full backup fresh: auto runs incremental.
	result, err = svc.Run(ctx, teacherClaims(), models.BackupAuto)
	require.NoError(t, err)
	require.Equal(t, models.BackupIncremental, result.Type)
	require.Equal(t, 1, result.Objects)
}

func TestBackupRunForbiddenForStudents(t *testing.T) {
	svc := newBackupService(t, &backupStateStub{})

	_, err := svc.Run(context.Background(), studentClaims(), models.BackupFull)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestBackupStateRequiresManager(t *testing.T) {
	store := &backupStateStub{state: models.BackupState{LastFullTS: 10}}
	svc := newBackupService(t, store)

	_, err := svc.State(context.Background(), studentClaims())
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	state, err := svc.State(context.Background(), teacherClaims())
	require.NoError(t, err)
	require.Equal(t, int64(10), state.LastFullTS)
}
