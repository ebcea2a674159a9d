package service

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edukit/coursebot-api/internal/models"
	appErrors "github.com/edukit/coursebot-api/pkg/errors"
)

type backupStateStore interface {
	State(ctx context.Context) (*models.BackupState, error)
	MarkFull(ctx context.Context, ts int64) error
	MarkIncremental(ctx context.Context, ts int64) error
}

// BackupServiceConfig carries the freshness windows and archive target.
type BackupServiceConfig struct {
	Dir          string
	DatabasePath string
	DataDir      string
	FullMaxAge   time.Duration
	IncMaxAge    time.Duration
	AutoInterval time.Duration
}

// BackupService produces tar.gz archives of the database file and blob
// directory, tracks when the last runs finished and gates destructive
// catalog operations on that freshness.
type BackupService struct {
	store  backupStateStore
	audit  auditRecorder
	logger *zap.Logger
	cfg    BackupServiceConfig
	now    func() time.Time
}

// NewBackupService constructs the service with defaults.
func NewBackupService(store backupStateStore, audit auditRecorder, logger *zap.Logger, cfg BackupServiceConfig) *BackupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FullMaxAge <= 0 {
		cfg.FullMaxAge = 24 * time.Hour
	}
	if cfg.IncMaxAge <= 0 {
		cfg.IncMaxAge = time.Hour
	}
	if cfg.Dir == "" {
		cfg.Dir = "./var/backup"
	}
	return &BackupService{
		store:  store,
		audit:  audit,
		logger: logger,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Fresh returns nil when both freshness windows hold: a full backup
// within FullMaxAge and an incremental (or full) within IncMaxAge.
// Destructive operations call this before touching anything.
func (s *BackupService) Fresh(ctx context.Context) error {
	state, err := s.store.State(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load backup state")
	}
	now := s.now().Unix()
	if state.LastFullTS == 0 || now-state.LastFullTS > int64(s.cfg.FullMaxAge.Seconds()) {
		return appErrors.Clone(appErrors.ErrBackupStale, "full backup is missing or too old")
	}
	if state.LastIncrementalTS == 0 || now-state.LastIncrementalTS > int64(s.cfg.IncMaxAge.Seconds()) {
		return appErrors.Clone(appErrors.ErrBackupStale, "incremental backup is missing or too old")
	}
	return nil
}

// State exposes the raw backup timestamps.
func (s *BackupService) State(ctx context.Context, actor *models.JWTClaims) (*models.BackupState, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	state, err := s.store.State(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load backup state")
	}
	return state, nil
}

// Run performs a backup of the requested type. BackupAuto picks full when
// the full window lapsed, incremental otherwise.
func (s *BackupService) Run(ctx context.Context, actor *models.JWTClaims, btype models.BackupType) (*models.BackupResult, error) {
	if actor != nil {
		if err := requireManager(actor); err != nil {
			return nil, err
		}
	}
	switch btype {
	case models.BackupAuto, models.BackupFull, models.BackupIncremental:
	case "":
		btype = models.BackupAuto
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown backup type")
	}

	started := s.now()
	if btype == models.BackupAuto {
		btype = s.pickAutoType(ctx, started)
	}

	result, err := s.writeArchive(btype, started)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "backup failed")
	}

	finished := s.now()
	result.FinishedAt = finished.Unix()
	if btype == models.BackupFull {
		err = s.store.MarkFull(ctx, finished.Unix())
	} else {
		err = s.store.MarkIncremental(ctx, finished.Unix())
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record backup state")
	}

	actorID := "system"
	if actor != nil {
		actorID = actor.UserID
	}
	s.audit.Record(&models.AuditEntry{
		ActorID:    actorID,
		Event:      models.AuditBackupRun,
		ObjectType: "backup",
		Meta:       []byte(fmt.Sprintf(`{"backup_id":"%s","type":"%s","objects":%d}`, result.BackupID, result.Type, result.Objects)),
	})
	return result, nil
}

// RunPeriodic executes auto backups until the context is cancelled.
func (s *BackupService) RunPeriodic(ctx context.Context) {
	interval := s.cfg.AutoInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx, nil, models.BackupAuto); err != nil {
				s.logger.Warn("periodic backup failed", zap.Error(err))
			}
		}
	}
}

func (s *BackupService) pickAutoType(ctx context.Context, now time.Time) models.BackupType {
	state, err := s.store.State(ctx)
	if err != nil {
		return models.BackupFull
	}
	if state.LastFullTS == 0 || now.Unix()-state.LastFullTS > int64(s.cfg.FullMaxAge.Seconds()) {
		return models.BackupFull
	}
	return models.BackupIncremental
}

// writeArchive tars the database file and, for full backups, the whole
// data directory into <dir>/<type>_<ts>_<id>.tar.gz.
func (s *BackupService) writeArchive(btype models.BackupType, started time.Time) (*models.BackupResult, error) {
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	backupID := uuid.NewString()
	name := fmt.Sprintf("%s_%d_%s.tar.gz", btype, started.Unix(), backupID[:8])
	path := filepath.Join(s.cfg.Dir, name)

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	defer out.Close() //nolint:errcheck

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	objects := 0
	add := func(filePath, archivePath string) error {
		info, err := os.Stat(filePath)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = archivePath
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		file, err := os.Open(filePath)
		if err != nil {
			return err
		}
		defer file.Close() //nolint:errcheck
		if _, err := io.Copy(tw, file); err != nil {
			return err
		}
		objects++
		return nil
	}

	if s.cfg.DatabasePath != "" {
		if err := add(s.cfg.DatabasePath, filepath.Base(s.cfg.DatabasePath)); err != nil {
			return nil, fmt.Errorf("archive database: %w", err)
		}
	}

	if btype == models.BackupFull && s.cfg.DataDir != "" {
		err := filepath.Walk(s.cfg.DataDir, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				// The backup directory may live under the data dir; never
				// archive archives.
				if filepath.Clean(p) == filepath.Clean(s.cfg.Dir) {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(s.cfg.DataDir, p)
			if err != nil {
				return err
			}
			if strings.HasPrefix(rel, "..") {
				return nil
			}
			return add(p, filepath.ToSlash(filepath.Join("data", rel)))
		})
		if err != nil {
			return nil, fmt.Errorf("archive data dir: %w", err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	return &models.BackupResult{
		BackupID:    backupID,
		Type:        btype,
		ArchivePath: path,
		Objects:     objects,
		SizeBytes:   info.Size(),
		StartedAt:   started.Unix(),
	}, nil
}
