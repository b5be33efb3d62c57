package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-course-api/internal/models"
	"github.com/noah-isme/edu-course-api/pkg/jobs"
)

type activityStore interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
	ListRecent(ctx context.Context, limit int) ([]models.AuditLog, error)
}

// ActivityConfig tunes the background activity queue.
type ActivityConfig struct {
	Enabled    bool
	Workers    int
	BufferSize int
}

// ActivityService records user and admin actions through an in-memory worker
// queue so writes never sit on the request path. A dropped record is logged
// and tolerated.
type ActivityService struct {
	repo    activityStore
	queue   *jobs.Queue
	logger  *zap.Logger
	enabled bool
}

// NewActivityService wires the activity queue to the persistence layer.
func NewActivityService(repo activityStore, cfg ActivityConfig, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ActivityService{repo: repo, logger: logger, enabled: cfg.Enabled}
	if !cfg.Enabled {
		return s
	}
	s.queue = jobs.NewQueue("activity", func(ctx context.Context, job jobs.Job) error {
		record, ok := job.Payload.(*models.AuditLog)
		if !ok {
			logger.Warn("activity job carried unexpected payload", zap.String("job_id", job.ID))
			return nil
		}
		return repo.CreateAuditLog(ctx, record)
	}, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
		Logger:     logger,
	})
	return s
}

// Start launches the queue workers.
func (s *ActivityService) Start(ctx context.Context) {
	if s == nil || s.queue == nil {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *ActivityService) Stop() {
	if s == nil || s.queue == nil {
		return
	}
	s.queue.Stop()
}

// Record enqueues an activity record. Failures are logged, never surfaced.
func (s *ActivityService) Record(log *models.AuditLog) {
	if s == nil || !s.enabled || s.queue == nil || log == nil {
		return
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: log.Action, Payload: log}); err != nil {
		s.logger.Warn("failed to enqueue activity record", zap.String("action", log.Action), zap.Error(err))
	}
}

// Recent lists the latest recorded activity entries.
func (s *ActivityService) Recent(ctx context.Context, limit int) ([]models.AuditLog, error) {
	if s == nil || s.repo == nil {
		return nil, nil
	}
	return s.repo.ListRecent(ctx, limit)
}
