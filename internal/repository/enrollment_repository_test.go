package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-course-api/internal/models"
)

func newEnrollmentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollCreatesEnrollmentHistoryAndTuition(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT capacity FROM classes WHERE id = \\$1 FOR UPDATE").
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status = $2")).
		WithArgs("class-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT id, student_id, class_id, status, enrolled_at, cancelled_at FROM enrollments WHERE student_id = \\$1 AND class_id = \\$2 FOR UPDATE").
		WithArgs("student-1", "class-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO enrollments").
		WithArgs(sqlmock.AnyArg(), "student-1", "class-1", models.EnrollmentStatusEnrolled, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO enrollment_histories").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "student-1", "class-1", models.EnrollmentActionEnrolled, sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO tuitions").
		WithArgs(sqlmock.AnyArg(), "student-1", sqlmock.AnyArg(), 1500000.0, sqlmock.AnyArg(), models.TuitionStatusPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	enrollment, err := repo.Enroll(context.Background(), EnrollParams{
		StudentID:     "student-1",
		ClassID:       "class-1",
		TuitionAmount: 1500000,
		TuitionDue:    28 * 24 * time.Hour,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollRejectsFullClass(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT capacity FROM classes WHERE id = \\$1 FOR UPDATE").
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status = $2")).
		WithArgs("class-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), EnrollParams{StudentID: "student-1", ClassID: "class-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrClassFull))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollReactivatesCancelledEnrollment(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	cancelled := time.Now().Add(-48 * time.Hour)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT capacity FROM classes WHERE id = \\$1 FOR UPDATE").
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status = $2")).
		WithArgs("class-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT id, student_id, class_id, status, enrolled_at, cancelled_at FROM enrollments WHERE student_id = \\$1 AND class_id = \\$2 FOR UPDATE").
		WithArgs("student-1", "class-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "class_id", "status", "enrolled_at", "cancelled_at"}).
			AddRow("enr-1", "student-1", "class-1", models.EnrollmentStatusCancelled, cancelled.Add(-time.Hour), cancelled))
	mock.ExpectExec("UPDATE enrollments SET status").
		WithArgs("enr-1", models.EnrollmentStatusEnrolled, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO enrollment_histories").
		WithArgs(sqlmock.AnyArg(), "enr-1", "student-1", "class-1", models.EnrollmentActionEnrolled, sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO tuitions").
		WithArgs(sqlmock.AnyArg(), "student-1", "enr-1", 0.0, sqlmock.AnyArg(), models.TuitionStatusPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	enrollment, err := repo.Enroll(context.Background(), EnrollParams{StudentID: "student-1", ClassID: "class-1"})
	require.NoError(t, err)
	assert.Equal(t, "enr-1", enrollment.ID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollRejectsActiveDuplicate(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT capacity FROM classes WHERE id = \\$1 FOR UPDATE").
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status = $2")).
		WithArgs("class-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery("SELECT id, student_id, class_id, status, enrolled_at, cancelled_at FROM enrollments WHERE student_id = \\$1 AND class_id = \\$2 FOR UPDATE").
		WithArgs("student-1", "class-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "class_id", "status", "enrolled_at", "cancelled_at"}).
			AddRow("enr-1", "student-1", "class-1", models.EnrollmentStatusEnrolled, now, nil))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), EnrollParams{StudentID: "student-1", ClassID: "class-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyEnrolled))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelMarksEnrollmentCancelled(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, student_id, class_id, status, enrolled_at, cancelled_at FROM enrollments WHERE student_id = \\$1 AND class_id = \\$2 AND status = \\$3 FOR UPDATE").
		WithArgs("student-1", "class-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "class_id", "status", "enrolled_at", "cancelled_at"}).
			AddRow("enr-1", "student-1", "class-1", models.EnrollmentStatusEnrolled, now, nil))
	mock.ExpectExec("UPDATE enrollments SET status").
		WithArgs("enr-1", models.EnrollmentStatusCancelled, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO enrollment_histories").
		WithArgs(sqlmock.AnyArg(), "enr-1", "student-1", "class-1", models.EnrollmentActionCancelled, sqlmock.AnyArg(), "changed my mind", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	enrollment, err := repo.Cancel(context.Background(), "student-1", "class-1", "changed my mind", "")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCancelled, enrollment.Status)
	require.NotNil(t, enrollment.CancelledAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelWithoutActiveEnrollment(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, student_id, class_id, status, enrolled_at, cancelled_at FROM enrollments WHERE student_id = \\$1 AND class_id = \\$2 AND status = \\$3 FOR UPDATE").
		WithArgs("student-1", "class-1", models.EnrollmentStatusEnrolled).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Cancel(context.Background(), "student-1", "class-1", "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveDetailByStudent(t *testing.T) {
	db, mock, cleanup := newEnrollmentMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "student_id", "class_id", "status", "enrolled_at", "cancelled_at",
		"class_code", "class_schedule", "class_room", "class_start_date", "class_end_date",
		"course_id", "course_code", "course_name", "course_credits", "course_fee", "instructor_name",
	}).AddRow("enr-1", "student-1", "class-1", models.EnrollmentStatusEnrolled, now, nil,
		"GO-101-A", "MON,WED|09:00-10:30", "R201", now, now.Add(90*24*time.Hour),
		"course-1", "GO101", "Intro to Go", 3, 1500000.0, "Dr. Tanaka")
	mock.ExpectQuery("FROM enrollments e").
		WithArgs("student-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(rows)

	details, err := repo.ListActiveDetailByStudent(context.Background(), "student-1")
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "GO101", details[0].CourseCode)
	assert.Equal(t, "MON,WED|09:00-10:30", details[0].ClassSchedule)
	assert.NoError(t, mock.ExpectationsWereMet())
}
