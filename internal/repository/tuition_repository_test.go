package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-course-api/internal/models"
)

func newTuitionMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnsureReturnsExistingTuition(t *testing.T) {
	db, mock, cleanup := newTuitionMock(t)
	defer cleanup()
	repo := NewTuitionRepository(db)

	due := time.Now().Add(28 * 24 * time.Hour)
	mock.ExpectExec("INSERT INTO tuitions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id, student_id, enrollment_id, amount, due_date, status, paid_at, created_at FROM tuitions WHERE enrollment_id = \\$1").
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "enrollment_id", "amount", "due_date", "status", "paid_at", "created_at"}).
			AddRow("tuition-1", "student-1", "enr-1", 1500000.0, due, models.TuitionStatusPending, nil, time.Now()))

	stored, err := repo.Ensure(context.Background(), &models.Tuition{
		StudentID:    "student-1",
		EnrollmentID: "enr-1",
		Amount:       1500000,
		DueDate:      due,
	})
	require.NoError(t, err)
	assert.Equal(t, "tuition-1", stored.ID)
	assert.Equal(t, models.TuitionStatusPending, stored.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePaymentMovesTuitionToProcessing(t *testing.T) {
	db, mock, cleanup := newTuitionMock(t)
	defer cleanup()
	repo := NewTuitionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO tuition_payments").
		WithArgs(sqlmock.AnyArg(), "tuition-1", "student-1", 1500000.0, "BANK_TRANSFER", sqlmock.AnyArg(), models.PaymentStatusProcessing, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE tuitions SET status").
		WithArgs("tuition-1", models.TuitionStatusProcessing).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.CreatePayment(context.Background(), &models.TuitionPayment{
		TuitionID: "tuition-1",
		StudentID: "student-1",
		Amount:    1500000,
		Method:    "BANK_TRANSFER",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDetailByStudentOrdersByDueDate(t *testing.T) {
	db, mock, cleanup := newTuitionMock(t)
	defer cleanup()
	repo := NewTuitionRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "enrollment_id", "amount", "due_date", "status", "paid_at", "created_at", "course_code", "course_name", "class_code"}).
		AddRow("tuition-1", "student-1", "enr-1", 1500000.0, now.Add(7*24*time.Hour), models.TuitionStatusPending, nil, now, "GO101", "Intro to Go", "GO-101-A").
		AddRow("tuition-2", "student-1", "enr-2", 2000000.0, now.Add(21*24*time.Hour), models.TuitionStatusPending, nil, now, "DB201", "Databases", "DB-201-B")
	mock.ExpectQuery("FROM tuitions t").
		WithArgs("student-1").
		WillReturnRows(rows)

	tuitions, err := repo.ListDetailByStudent(context.Background(), "student-1")
	require.NoError(t, err)
	require.Len(t, tuitions, 2)
	assert.Equal(t, "GO101", tuitions[0].CourseCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}
