package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-course-api/internal/models"
	"github.com/noah-isme/edu-course-api/internal/repository"
	"github.com/noah-isme/edu-course-api/internal/schedule"
	appErrors "github.com/noah-isme/edu-course-api/pkg/errors"
)

type enrollmentStore interface {
	ListActiveDetailByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	FindActive(ctx context.Context, studentID, classID string) (*models.Enrollment, error)
	Enroll(ctx context.Context, p repository.EnrollParams) (*models.Enrollment, error)
	Cancel(ctx context.Context, studentID, classID, reason, note string) (*models.Enrollment, error)
	ListHistoryByStudent(ctx context.Context, studentID string) ([]models.EnrollmentHistoryDetail, error)
}

type classDetailReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error)
}

type studentResolver interface {
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

// EnrollRequest is the payload for enrolling into a class.
type EnrollRequest struct {
	ClassID string `json:"class_id" validate:"required"`
	Note    string `json:"note" validate:"omitempty,max=500"`
}

// UnenrollRequest is the payload for cancelling an enrollment.
type UnenrollRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
	Note   string `json:"note" validate:"omitempty,max=500"`
}

// DefaultCancelReason is recorded when a student cancels without giving one.
const DefaultCancelReason = "self-cancelled"

// ScheduleEntry is one row of a student's weekly schedule view.
type ScheduleEntry struct {
	Day        string `json:"day"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	CourseCode string `json:"course_code"`
	CourseName string `json:"course_name"`
	ClassCode  string `json:"class_code"`
	Room       string `json:"room"`
}

// TuitionRule decides the amount and due date of the generated tuition.
type TuitionRule struct {
	DuePeriod time.Duration
}

// EnrollmentService orchestrates the enrollment workflow: validation,
// schedule conflict detection, capacity control and history recording.
type EnrollmentService struct {
	repo      enrollmentStore
	classes   classDetailReader
	students  studentResolver
	cache     *CacheService
	metrics   *MetricsService
	activity  activityRecorder
	rule      TuitionRule
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentStore, classes classDetailReader, students studentResolver, cache *CacheService, metrics *MetricsService, activity activityRecorder, rule TuitionRule, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if rule.DuePeriod <= 0 {
		rule.DuePeriod = 28 * 24 * time.Hour
	}
	return &EnrollmentService{repo: repo, classes: classes, students: students, cache: cache, metrics: metrics, activity: activity, rule: rule, validator: validate, logger: logger}
}

// Enroll registers the authenticated user's student profile into a class.
// Checks run in a fixed order so the caller always learns the first failing
// condition: class exists, class open, not already enrolled, no duplicate
// course, no schedule conflict, capacity available. The repository re-checks
// capacity and duplicates inside the transaction, so two concurrent requests
// for the last seat cannot both succeed.
func (s *EnrollmentService) Enroll(ctx context.Context, userID string, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}

	class, err := s.classes.FindDetailByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if !class.Status.Enrollable() {
		return nil, s.conflict("class is not open for enrollment")
	}

	if _, err := s.repo.FindActive(ctx, student.ID, class.ID); err == nil {
		return nil, s.conflict("already enrolled in this class")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}

	active, err := s.repo.ListActiveDetailByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active enrollments")
	}

	candidate := schedule.Interval{Schedule: class.Schedule, StartDate: class.StartDate, EndDate: class.EndDate}
	for _, existing := range active {
		if existing.CourseID == class.CourseID {
			return nil, s.conflict(fmt.Sprintf("already enrolled in another class for course %s", existing.CourseName))
		}
		overlaps, err := schedule.Overlaps(candidate, schedule.Interval{
			Schedule:  existing.ClassSchedule,
			StartDate: existing.ClassStartDate,
			EndDate:   existing.ClassEndDate,
		})
		if err != nil {
			s.logger.Error("unparseable class schedule", zap.String("class_id", class.ID), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrScheduleData.Code, appErrors.ErrScheduleData.Status, appErrors.ErrScheduleData.Message)
		}
		if overlaps {
			return nil, s.conflict(fmt.Sprintf("schedule conflicts with %s (%s)", existing.CourseName, existing.ClassCode))
		}
	}

	if class.EnrolledCount >= class.Capacity {
		return nil, s.conflict("class is full")
	}

	enrollment, err := s.repo.Enroll(ctx, repository.EnrollParams{
		StudentID:     student.ID,
		ClassID:       class.ID,
		TuitionAmount: class.CourseFee,
		TuitionDue:    s.rule.DuePeriod,
		Note:          req.Note,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrClassFull):
			return nil, s.conflict("class is full")
		case errors.Is(err, repository.ErrAlreadyEnrolled):
			return nil, s.conflict("already enrolled in this class")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll")
		}
	}

	if s.metrics != nil {
		s.metrics.RecordEnrollment(false)
	}
	s.invalidateSchedule(ctx, student.ID)
	s.recordActivity(userID, models.AuditActionEnroll, enrollment.ID, map[string]string{"class_id": class.ID, "class_code": class.ClassCode})

	return enrollment, nil
}

// Unenroll cancels the student's active enrollment for a class. The tuition
// row is left untouched; billing disputes are handled out of band.
func (s *EnrollmentService) Unenroll(ctx context.Context, userID, classID string, req UnenrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid unenroll payload")
	}

	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}

	reason := req.Reason
	if reason == "" {
		reason = DefaultCancelReason
	}

	enrollment, err := s.repo.Cancel(ctx, student.ID, classID, reason, req.Note)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "active enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel enrollment")
	}

	s.invalidateSchedule(ctx, student.ID)
	s.recordActivity(userID, models.AuditActionUnenroll, enrollment.ID, map[string]string{"class_id": classID, "reason": reason})

	return enrollment, nil
}

// MyEnrollments lists the student's active enrollments with class detail.
func (s *EnrollmentService) MyEnrollments(ctx context.Context, userID string) ([]models.EnrollmentDetail, error) {
	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	details, err := s.repo.ListActiveDetailByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return details, nil
}

// History returns the student's enrollment ledger, newest entry first.
func (s *EnrollmentService) History(ctx context.Context, userID string) ([]models.EnrollmentHistoryDetail, error) {
	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	history, err := s.repo.ListHistoryByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollment history")
	}
	return history, nil
}

// weekdayOrder maps day codes to their position in the schedule view.
var weekdayOrder = map[string]int{"MON": 0, "TUE": 1, "WED": 2, "THU": 3, "FRI": 4, "SAT": 5, "SUN": 6}

var weekdayCode = map[time.Weekday]string{
	time.Monday:    "MON",
	time.Tuesday:   "TUE",
	time.Wednesday: "WED",
	time.Thursday:  "THU",
	time.Friday:    "FRI",
	time.Saturday:  "SAT",
	time.Sunday:    "SUN",
}

// MySchedule expands the student's active enrollments into a weekly schedule
// sorted by day then start time. The view is cached per student and
// invalidated on every enrollment mutation.
func (s *EnrollmentService) MySchedule(ctx context.Context, userID string) ([]ScheduleEntry, error) {
	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}

	cacheKey := scheduleCacheKey(student.ID)
	var cached []ScheduleEntry
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached, nil
	}

	details, err := s.repo.ListActiveDetailByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	entries := make([]ScheduleEntry, 0, len(details))
	for _, detail := range details {
		// End dates are inclusive, so a class ending today still shows.
		if detail.ClassEndDate.Before(today) {
			continue
		}
		spec, err := schedule.Parse(detail.ClassSchedule)
		if err != nil {
			s.logger.Error("unparseable class schedule", zap.String("class_id", detail.ClassID), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrScheduleData.Code, appErrors.ErrScheduleData.Status, appErrors.ErrScheduleData.Message)
		}
		for day := range spec.Days {
			entries = append(entries, ScheduleEntry{
				Day:        weekdayCode[day],
				StartTime:  formatMinutes(spec.StartMinutes),
				EndTime:    formatMinutes(spec.EndMinutes),
				CourseCode: detail.CourseCode,
				CourseName: detail.CourseName,
				ClassCode:  detail.ClassCode,
				Room:       detail.ClassRoom,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if weekdayOrder[entries[i].Day] != weekdayOrder[entries[j].Day] {
			return weekdayOrder[entries[i].Day] < weekdayOrder[entries[j].Day]
		}
		return entries[i].StartTime < entries[j].StartTime
	})

	if err := s.cache.Set(ctx, cacheKey, entries, 0); err != nil {
		s.logger.Warn("failed to cache schedule", zap.String("student_id", student.ID), zap.Error(err))
	}
	return entries, nil
}

func (s *EnrollmentService) conflict(message string) *appErrors.Error {
	if s.metrics != nil {
		s.metrics.RecordEnrollment(true)
	}
	return appErrors.Clone(appErrors.ErrConflict, message)
}

func (s *EnrollmentService) invalidateSchedule(ctx context.Context, studentID string) {
	if err := s.cache.Invalidate(ctx, scheduleCacheKey(studentID)); err != nil {
		s.logger.Warn("failed to invalidate schedule cache", zap.String("student_id", studentID), zap.Error(err))
	}
}

func (s *EnrollmentService) recordActivity(userID, action, resourceID string, values map[string]string) {
	if s.activity == nil {
		return
	}
	payload, _ := json.Marshal(values)
	s.activity.Record(&models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "enrollment",
		ResourceID: &resourceID,
		NewValues:  payload,
	})
}

func scheduleCacheKey(studentID string) string {
	return fmt.Sprintf("schedule:student:%s", studentID)
}

func formatMinutes(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
