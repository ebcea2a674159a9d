package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edukit/coursebot-api/internal/models"
	"github.com/edukit/coursebot-api/pkg/jobs"
)

type auditWriter interface {
	Insert(ctx context.Context, entry *models.AuditEntry) error
}

// AuditRecorder hands audit entries to a background queue so request
// paths never block on the audit table.
type AuditRecorder struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAuditRecorder builds the recorder and its worker queue. Call Start
// before recording and Stop on shutdown.
func NewAuditRecorder(repo auditWriter, logger *zap.Logger) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &AuditRecorder{logger: logger}
	r.queue = jobs.NewQueue("audit", func(ctx context.Context, job jobs.Job) error {
		entry, ok := job.Payload.(*models.AuditEntry)
		if !ok {
			return nil
		}
		return repo.Insert(ctx, entry)
	}, jobs.QueueConfig{Workers: 1, BufferSize: 64, Logger: logger})
	return r
}

// Start launches the worker.
func (r *AuditRecorder) Start(ctx context.Context) {
	r.queue.Start(ctx)
}

// Stop drains the worker.
func (r *AuditRecorder) Stop() {
	r.queue.Stop()
}

// Record enqueues an audit entry. Failures are logged, never returned.
func (r *AuditRecorder) Record(entry *models.AuditEntry) {
	if r == nil || entry == nil {
		return
	}
	if entry.TS == 0 {
		entry.TS = time.Now().UTC().Unix()
	}
	err := r.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: entry.Event, Payload: entry})
	if err != nil {
		r.logger.Warn("failed to enqueue audit entry", zap.String("event", entry.Event), zap.Error(err))
	}
}
