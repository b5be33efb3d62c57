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

func newClassMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func classDetailColumns() []string {
	return []string{
		"id", "course_id", "instructor_id", "class_code", "start_date", "end_date",
		"schedule", "room", "capacity", "status", "created_at", "updated_at",
		"course_code", "course_name", "course_fee", "instructor_name", "enrolled_count",
	}
}

func TestClassRepositoryFindDetailByID(t *testing.T) {
	db, mock, cleanup := newClassMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(classDetailColumns()).
		AddRow("class-1", "course-1", "instructor-1", "GO-101-A", now, now.Add(90*24*time.Hour),
			"MON,WED|09:00-10:30", "R201", 30, models.ClassStatusUpcoming, now, now,
			"GO101", "Intro to Go", 1500000.0, "Dr. Tanaka", 12)
	mock.ExpectQuery("FROM classes cl").
		WithArgs("class-1").
		WillReturnRows(rows)

	detail, err := repo.FindDetailByID(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, "GO-101-A", detail.ClassCode)
	assert.Equal(t, 12, detail.EnrolledCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryList(t *testing.T) {
	db, mock, cleanup := newClassMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(classDetailColumns()).
		AddRow("class-1", "course-1", "instructor-1", "GO-101-A", now, now.Add(90*24*time.Hour),
			"MON,WED|09:00-10:30", "R201", 30, models.ClassStatusOngoing, now, now,
			"GO101", "Intro to Go", 1500000.0, "Dr. Tanaka", 28)
	mock.ExpectQuery("FROM classes cl").
		WithArgs(models.ClassStatusOngoing).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(models.ClassStatusOngoing).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	classes, total, err := repo.List(context.Background(), models.ClassFilter{Status: models.ClassStatusOngoing})
	require.NoError(t, err)
	assert.Len(t, classes, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newClassMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec("INSERT INTO classes").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	class := &models.Class{
		CourseID:     "course-1",
		InstructorID: "instructor-1",
		ClassCode:    "GO-101-A",
		StartDate:    time.Now(),
		EndDate:      time.Now().Add(90 * 24 * time.Hour),
		Schedule:     "MON,WED|09:00-10:30",
		Room:         "R201",
		Capacity:     30,
	}
	err := repo.Create(context.Background(), class)
	require.NoError(t, err)
	assert.NotEmpty(t, class.ID)
	assert.Equal(t, models.ClassStatusUpcoming, class.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryListRoster(t *testing.T) {
	db, mock, cleanup := newClassMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"student_code", "full_name", "phone", "enrolled_at"}).
		AddRow("S-0001", "Alice Wong", "0811111111", now).
		AddRow("S-0002", "Budi Santoso", "0822222222", now)
	mock.ExpectQuery("FROM enrollments e").
		WithArgs("class-1").
		WillReturnRows(rows)

	roster, err := repo.ListRoster(context.Background(), "class-1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "Alice Wong", roster[0].FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
