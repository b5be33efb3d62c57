package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-course-api/internal/models"
	"github.com/noah-isme/edu-course-api/internal/schedule"
	appErrors "github.com/noah-isme/edu-course-api/pkg/errors"
)

type classStore interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error)
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	Create(ctx context.Context, class *models.Class) error
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type instructorReader interface {
	FindByID(ctx context.Context, id string) (*models.Instructor, error)
}

// CreateClassRequest describes the admin payload for scheduling a class.
type CreateClassRequest struct {
	CourseID     string    `json:"course_id" validate:"required"`
	InstructorID string    `json:"instructor_id" validate:"required"`
	ClassCode    string    `json:"class_code" validate:"required,max=32"`
	StartDate    time.Time `json:"start_date" validate:"required"`
	EndDate      time.Time `json:"end_date" validate:"required"`
	Schedule     string    `json:"schedule" validate:"required"`
	Room         string    `json:"room" validate:"required,max=64"`
	Capacity     int       `json:"capacity" validate:"required,min=1"`
}

// ClassService manages the class catalog and derived progress views.
type ClassService struct {
	repo        classStore
	courses     courseReader
	instructors instructorReader
	cache       *CacheService
	activity    activityRecorder
	progressTTL time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(repo classStore, courses courseReader, instructors instructorReader, cache *CacheService, activity activityRecorder, progressTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, courses: courses, instructors: instructors, cache: cache, activity: activity, progressTTL: progressTTL, validator: validate, logger: logger}
}

// List returns classes with pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return classes, pagination, nil
}

// Get returns one class with course, instructor and occupancy detail.
func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return detail, nil
}

// Create schedules a new class. The schedule string must parse and the end
// date must fall after the start date; a class is never created with data the
// conflict checker cannot read later.
func (s *ClassService) Create(ctx context.Context, adminUserID string, req CreateClassRequest) (*models.ClassDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if _, err := schedule.Parse(req.Schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "schedule must look like MON,WED|07:00-09:00")
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must be after start date")
	}

	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if _, err := s.instructors.FindByID(ctx, req.InstructorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}

	class := &models.Class{
		CourseID:     req.CourseID,
		InstructorID: req.InstructorID,
		ClassCode:    req.ClassCode,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Schedule:     req.Schedule,
		Room:         req.Room,
		Capacity:     req.Capacity,
		Status:       models.ClassStatusUpcoming,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}

	if s.activity != nil {
		payload, _ := json.Marshal(map[string]string{"class_code": class.ClassCode, "course_id": class.CourseID})
		s.activity.Record(&models.AuditLog{
			UserID:     &adminUserID,
			Action:     models.AuditActionClassCreate,
			Resource:   "class",
			ResourceID: &class.ID,
			NewValues:  payload,
		})
	}

	detail, err := s.repo.FindDetailByID(ctx, class.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load created class")
	}
	return detail, nil
}

// Progress reports total, completed and remaining lesson counts for a class,
// derived from its schedule string. Completed counts lessons whose end time
// has passed. The result is cached briefly since it only changes as time
// advances.
func (s *ClassService) Progress(ctx context.Context, id string) (*models.ClassProgress, error) {
	cacheKey := progressCacheKey(id)
	var cached models.ClassProgress
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	spec, err := schedule.Parse(class.Schedule)
	if err != nil {
		s.logger.Error("unparseable class schedule", zap.String("class_id", class.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrScheduleData.Code, appErrors.ErrScheduleData.Status, appErrors.ErrScheduleData.Message)
	}

	total := schedule.TotalLessons(spec, class.StartDate, class.EndDate)
	completed := schedule.CompletedLessons(spec, class.StartDate, class.EndDate, time.Now())
	progress := &models.ClassProgress{
		ClassID:          class.ID,
		TotalLessons:     total,
		CompletedLessons: completed,
		RemainingLessons: total - completed,
	}

	if err := s.cache.Set(ctx, cacheKey, progress, s.progressTTL); err != nil {
		s.logger.Warn("failed to cache class progress", zap.String("class_id", class.ID), zap.Error(err))
	}
	return progress, nil
}

func progressCacheKey(classID string) string {
	return fmt.Sprintf("progress:class:%s", classID)
}
