package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edu-course-api/internal/models"
)

// Sentinel errors surfaced from the enroll transaction so the service layer
// can map them to the proper conflict responses.
var (
	ErrClassFull       = errors.New("class capacity reached")
	ErrAlreadyEnrolled = errors.New("student already enrolled in class")
)

// EnrollmentRepository handles persistence of enrollments, their history
// ledger and the tuition row generated alongside a first-time enrollment.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_id, class_id, status, enrolled_at, cancelled_at`

const enrollmentDetailQuery = `SELECT e.id, e.student_id, e.class_id, e.status, e.enrolled_at, e.cancelled_at,
        cl.class_code, cl.schedule AS class_schedule, cl.room AS class_room,
        cl.start_date AS class_start_date, cl.end_date AS class_end_date,
        co.id AS course_id, co.code AS course_code, co.name AS course_name,
        co.credits AS course_credits, co.fee AS course_fee,
        i.full_name AS instructor_name
        FROM enrollments e
        JOIN classes cl ON cl.id = e.class_id
        JOIN courses co ON co.id = cl.course_id
        JOIN instructors i ON i.id = cl.instructor_id`

// ListActiveDetailByStudent returns the student's active enrollments joined
// with class, course and instructor info, newest first. The result feeds both
// display and the schedule conflict checks on enroll.
func (r *EnrollmentRepository) ListActiveDetailByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailQuery + ` WHERE e.student_id = $1 AND e.status = $2 ORDER BY e.enrolled_at DESC`
	var details []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &details, query, studentID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return details, nil
}

// FindActive returns the active enrollment for a (student, class) pair.
func (r *EnrollmentRepository) FindActive(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 AND class_id = $2 AND status = $3`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, classID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// EnrollParams carries everything the enroll transaction persists.
type EnrollParams struct {
	StudentID     string
	ClassID       string
	TuitionAmount float64
	TuitionDue    time.Duration
	Note          string
}

// Enroll runs the write half of the enroll operation in one transaction: it
// locks the class row, re-checks capacity, creates or reactivates the
// enrollment, appends the history record and creates the tuition row for a
// first-time enrollment. The class row lock serialises concurrent enrolls for
// the same class so the capacity check stays truthful.
func (r *EnrollmentRepository) Enroll(ctx context.Context, p EnrollParams) (*models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enroll tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var capacity int
	if err = tx.GetContext(ctx, &capacity, `SELECT capacity FROM classes WHERE id = $1 FOR UPDATE`, p.ClassID); err != nil {
		return nil, err
	}

	var enrolled int
	if err = tx.GetContext(ctx, &enrolled, `SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status = $2`, p.ClassID, models.EnrollmentStatusEnrolled); err != nil {
		err = fmt.Errorf("recount enrolled: %w", err)
		return nil, err
	}
	if enrolled >= capacity {
		err = ErrClassFull
		return nil, err
	}

	now := time.Now().UTC()
	enrollment := models.Enrollment{
		StudentID:  p.StudentID,
		ClassID:    p.ClassID,
		Status:     models.EnrollmentStatusEnrolled,
		EnrolledAt: now,
	}

	var prior models.Enrollment
	findErr := tx.GetContext(ctx, &prior, `SELECT `+enrollmentColumns+` FROM enrollments WHERE student_id = $1 AND class_id = $2 FOR UPDATE`, p.StudentID, p.ClassID)
	switch {
	case findErr == nil:
		if prior.Status == models.EnrollmentStatusEnrolled {
			err = ErrAlreadyEnrolled
			return nil, err
		}
		enrollment.ID = prior.ID
		if _, err = tx.ExecContext(ctx, `UPDATE enrollments SET status = $2, enrolled_at = $3, cancelled_at = NULL WHERE id = $1`, prior.ID, models.EnrollmentStatusEnrolled, now); err != nil {
			err = fmt.Errorf("reactivate enrollment: %w", err)
			return nil, err
		}
	case errors.Is(findErr, sql.ErrNoRows):
		enrollment.ID = uuid.NewString()
		if _, err = tx.ExecContext(ctx, `INSERT INTO enrollments (id, student_id, class_id, status, enrolled_at) VALUES ($1, $2, $3, $4, $5)`,
			enrollment.ID, p.StudentID, p.ClassID, models.EnrollmentStatusEnrolled, now); err != nil {
			err = fmt.Errorf("create enrollment: %w", err)
			return nil, err
		}
	default:
		err = fmt.Errorf("find prior enrollment: %w", findErr)
		return nil, err
	}

	if err = appendHistoryTx(ctx, tx, models.EnrollmentHistory{
		EnrollmentID: enrollment.ID,
		StudentID:    p.StudentID,
		ClassID:      p.ClassID,
		Action:       models.EnrollmentActionEnrolled,
		ActionDate:   now,
		Note:         optional(p.Note),
	}); err != nil {
		return nil, err
	}

	// The unique constraint on enrollment_id makes tuition generation
	// idempotent across re-enrollments of the same class.
	if _, err = tx.ExecContext(ctx, `INSERT INTO tuitions (id, student_id, enrollment_id, amount, due_date, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (enrollment_id) DO NOTHING`,
		uuid.NewString(), p.StudentID, enrollment.ID, p.TuitionAmount, now.Add(p.TuitionDue), models.TuitionStatusPending, now); err != nil {
		err = fmt.Errorf("create tuition: %w", err)
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enroll tx: %w", err)
	}
	return &enrollment, nil
}

// Cancel marks the active enrollment cancelled and appends the matching
// history record in one transaction. sql.ErrNoRows is returned when the
// student has no active enrollment for the class.
func (r *EnrollmentRepository) Cancel(ctx context.Context, studentID, classID, reason, note string) (*models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cancel tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var enrollment models.Enrollment
	if err = tx.GetContext(ctx, &enrollment, `SELECT `+enrollmentColumns+` FROM enrollments WHERE student_id = $1 AND class_id = $2 AND status = $3 FOR UPDATE`,
		studentID, classID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE enrollments SET status = $2, cancelled_at = $3 WHERE id = $1`, enrollment.ID, models.EnrollmentStatusCancelled, now); err != nil {
		err = fmt.Errorf("cancel enrollment: %w", err)
		return nil, err
	}
	enrollment.Status = models.EnrollmentStatusCancelled
	enrollment.CancelledAt = &now

	if err = appendHistoryTx(ctx, tx, models.EnrollmentHistory{
		EnrollmentID: enrollment.ID,
		StudentID:    studentID,
		ClassID:      classID,
		Action:       models.EnrollmentActionCancelled,
		ActionDate:   now,
		Reason:       optional(reason),
		Note:         optional(note),
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cancel tx: %w", err)
	}
	return &enrollment, nil
}

// ListHistoryByStudent returns the student's ledger entries newest first.
func (r *EnrollmentRepository) ListHistoryByStudent(ctx context.Context, studentID string) ([]models.EnrollmentHistoryDetail, error) {
	const query = `SELECT h.id, h.enrollment_id, h.student_id, h.class_id, h.action, h.action_date, h.reason, h.note,
        cl.class_code, co.code AS course_code, co.name AS course_name
        FROM enrollment_histories h
        JOIN classes cl ON cl.id = h.class_id
        JOIN courses co ON co.id = cl.course_id
        WHERE h.student_id = $1
        ORDER BY h.action_date DESC`
	var history []models.EnrollmentHistoryDetail
	if err := r.db.SelectContext(ctx, &history, query, studentID); err != nil {
		return nil, fmt.Errorf("list enrollment history: %w", err)
	}
	return history, nil
}

func appendHistoryTx(ctx context.Context, tx *sqlx.Tx, record models.EnrollmentHistory) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO enrollment_histories (id, enrollment_id, student_id, class_id, action, action_date, reason, note)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.EnrollmentID, record.StudentID, record.ClassID, record.Action, record.ActionDate, record.Reason, record.Note); err != nil {
		return fmt.Errorf("append enrollment history: %w", err)
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
