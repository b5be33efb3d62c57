package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-course-api/internal/models"
	appErrors "github.com/noah-isme/edu-course-api/pkg/errors"
)

type tuitionStore interface {
	Ensure(ctx context.Context, tuition *models.Tuition) (*models.Tuition, error)
	ListDetailByStudent(ctx context.Context, studentID string) ([]models.TuitionDetail, error)
	FindDetailByID(ctx context.Context, id, studentID string) (*models.TuitionDetail, error)
	CreatePayment(ctx context.Context, payment *models.TuitionPayment) error
}

type activeEnrollmentLister interface {
	ListActiveDetailByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

// PaymentRequest is the payload for paying a tuition obligation.
type PaymentRequest struct {
	Method        string `json:"method" validate:"required,oneof=BANK_TRANSFER VIRTUAL_ACCOUNT CARD CASH"`
	TransactionID string `json:"transaction_id" validate:"omitempty,max=128"`
	Notes         string `json:"notes" validate:"omitempty,max=500"`
}

// TuitionService manages tuition obligations and payment attempts.
type TuitionService struct {
	repo        tuitionStore
	enrollments activeEnrollmentLister
	students    studentResolver
	activity    activityRecorder
	rule        TuitionRule
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewTuitionService constructs TuitionService.
func NewTuitionService(repo tuitionStore, enrollments activeEnrollmentLister, students studentResolver, activity activityRecorder, rule TuitionRule, validate *validator.Validate, logger *zap.Logger) *TuitionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if rule.DuePeriod <= 0 {
		rule.DuePeriod = 28 * 24 * time.Hour
	}
	return &TuitionService{repo: repo, enrollments: enrollments, students: students, activity: activity, rule: rule, validator: validate, logger: logger}
}

// MyTuitions lists the student's tuition obligations. Rows missing for active
// enrollments are generated on the fly with the course fee and a due date of
// enrollment time plus the configured period, so the listing is always
// complete even for rows predating tuition generation. A pending row past its
// due date is presented as overdue.
func (s *TuitionService) MyTuitions(ctx context.Context, userID string) ([]models.TuitionDetail, error) {
	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}

	active, err := s.enrollments.ListActiveDetailByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	for _, enrollment := range active {
		if _, err := s.repo.Ensure(ctx, &models.Tuition{
			StudentID:    student.ID,
			EnrollmentID: enrollment.ID,
			Amount:       enrollment.CourseFee,
			DueDate:      enrollment.EnrolledAt.Add(s.rule.DuePeriod),
		}); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate tuition")
		}
	}

	tuitions, err := s.repo.ListDetailByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tuitions")
	}

	now := time.Now().UTC()
	for i := range tuitions {
		if tuitions[i].Status == models.TuitionStatusPending && tuitions[i].DueDate.Before(now) {
			tuitions[i].Status = models.TuitionStatusOverdue
		}
	}
	return tuitions, nil
}

// Get returns one tuition scoped to the authenticated student.
func (s *TuitionService) Get(ctx context.Context, userID, tuitionID string) (*models.TuitionDetail, error) {
	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	detail, err := s.repo.FindDetailByID(ctx, tuitionID, student.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tuition not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tuition")
	}
	return detail, nil
}

// Pay records a payment attempt against a pending or overdue tuition. The
// attempt lands in PROCESSING state; settlement confirmation arrives through
// a separate back-office flow.
func (s *TuitionService) Pay(ctx context.Context, userID, tuitionID string, req PaymentRequest) (*models.TuitionPayment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}

	tuition, err := s.repo.FindDetailByID(ctx, tuitionID, student.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tuition not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tuition")
	}

	switch tuition.Status {
	case models.TuitionStatusPaid:
		return nil, appErrors.Clone(appErrors.ErrConflict, "tuition is already paid")
	case models.TuitionStatusProcessing:
		return nil, appErrors.Clone(appErrors.ErrConflict, "a payment is already being processed")
	}

	payment := &models.TuitionPayment{
		TuitionID:     tuition.ID,
		StudentID:     student.ID,
		Amount:        tuition.Amount,
		Method:        req.Method,
		TransactionID: req.TransactionID,
		Notes:         req.Notes,
		Status:        models.PaymentStatusProcessing,
		PaymentDate:   time.Now().UTC(),
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	if s.activity != nil {
		values, _ := json.Marshal(map[string]string{"tuition_id": tuition.ID, "method": req.Method})
		s.activity.Record(&models.AuditLog{
			UserID:     &userID,
			Action:     models.AuditActionPaymentCreate,
			Resource:   "tuition",
			ResourceID: &payment.ID,
			NewValues:  values,
		})
	}

	return payment, nil
}
