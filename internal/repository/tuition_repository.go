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

// TuitionRepository handles persistence of tuition obligations and payments.
type TuitionRepository struct {
	db *sqlx.DB
}

// NewTuitionRepository constructs the repository.
func NewTuitionRepository(db *sqlx.DB) *TuitionRepository {
	return &TuitionRepository{db: db}
}

const tuitionColumns = `id, student_id, enrollment_id, amount, due_date, status, paid_at, created_at`

// FindByEnrollment returns the tuition row for an enrollment.
func (r *TuitionRepository) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Tuition, error) {
	query := `SELECT ` + tuitionColumns + ` FROM tuitions WHERE enrollment_id = $1`
	var tuition models.Tuition
	if err := r.db.GetContext(ctx, &tuition, query, enrollmentID); err != nil {
		return nil, err
	}
	return &tuition, nil
}

// Ensure creates the tuition row for an enrollment if it does not already
// exist and returns the stored row either way. The unique constraint on
// enrollment_id guarantees generation never duplicates, even under races.
func (r *TuitionRepository) Ensure(ctx context.Context, tuition *models.Tuition) (*models.Tuition, error) {
	if tuition.ID == "" {
		tuition.ID = uuid.NewString()
	}
	if tuition.CreatedAt.IsZero() {
		tuition.CreatedAt = time.Now().UTC()
	}
	if tuition.Status == "" {
		tuition.Status = models.TuitionStatusPending
	}
	const query = `INSERT INTO tuitions (id, student_id, enrollment_id, amount, due_date, status, created_at)
        VALUES (:id, :student_id, :enrollment_id, :amount, :due_date, :status, :created_at)
        ON CONFLICT (enrollment_id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, tuition); err != nil {
		return nil, fmt.Errorf("ensure tuition: %w", err)
	}
	stored, err := r.FindByEnrollment(ctx, tuition.EnrollmentID)
	if err != nil {
		return nil, fmt.Errorf("reload tuition: %w", err)
	}
	return stored, nil
}

// ListDetailByStudent returns the student's tuitions with course labels,
// nearest due date first.
func (r *TuitionRepository) ListDetailByStudent(ctx context.Context, studentID string) ([]models.TuitionDetail, error) {
	const query = `SELECT t.id, t.student_id, t.enrollment_id, t.amount, t.due_date, t.status, t.paid_at, t.created_at,
        co.code AS course_code, co.name AS course_name, cl.class_code
        FROM tuitions t
        JOIN enrollments e ON e.id = t.enrollment_id
        JOIN classes cl ON cl.id = e.class_id
        JOIN courses co ON co.id = cl.course_id
        WHERE t.student_id = $1
        ORDER BY t.due_date ASC`
	var tuitions []models.TuitionDetail
	if err := r.db.SelectContext(ctx, &tuitions, query, studentID); err != nil {
		return nil, fmt.Errorf("list tuitions: %w", err)
	}
	return tuitions, nil
}

// CreatePayment inserts a payment attempt and moves the tuition to
// PROCESSING within one transaction.
func (r *TuitionRepository) CreatePayment(ctx context.Context, payment *models.TuitionPayment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.PaymentDate.IsZero() {
		payment.PaymentDate = time.Now().UTC()
	}
	if payment.Status == "" {
		payment.Status = models.PaymentStatusProcessing
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin payment tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `INSERT INTO tuition_payments (id, tuition_id, student_id, amount, method, transaction_id, status, notes, payment_date)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		payment.ID, payment.TuitionID, payment.StudentID, payment.Amount, payment.Method, payment.TransactionID, payment.Status, payment.Notes, payment.PaymentDate); err != nil {
		err = fmt.Errorf("create payment: %w", err)
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE tuitions SET status = $2 WHERE id = $1`, payment.TuitionID, models.TuitionStatusProcessing); err != nil {
		err = fmt.Errorf("update tuition status: %w", err)
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit payment tx: %w", err)
	}
	return nil
}

// FindDetailByID returns one tuition with course labels, scoped to a student.
func (r *TuitionRepository) FindDetailByID(ctx context.Context, id, studentID string) (*models.TuitionDetail, error) {
	const query = `SELECT t.id, t.student_id, t.enrollment_id, t.amount, t.due_date, t.status, t.paid_at, t.created_at,
        co.code AS course_code, co.name AS course_name, cl.class_code
        FROM tuitions t
        JOIN enrollments e ON e.id = t.enrollment_id
        JOIN classes cl ON cl.id = e.class_id
        JOIN courses co ON co.id = cl.course_id
        WHERE t.id = $1 AND t.student_id = $2`
	var detail models.TuitionDetail
	if err := r.db.GetContext(ctx, &detail, query, id, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find tuition detail: %w", err)
	}
	return &detail, nil
}
