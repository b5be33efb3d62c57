package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-course-api/internal/models"
	"github.com/noah-isme/edu-course-api/internal/repository"
	appErrors "github.com/noah-isme/edu-course-api/pkg/errors"
)

type mockEnrollmentStore struct {
	active      []models.EnrollmentDetail
	activePairs map[string]models.Enrollment
	enrollErr   error
	enrolled    *repository.EnrollParams
	cancelled   *models.Enrollment
	cancelErr   error
	lastReason  string
	lastNote    string
	history     []models.EnrollmentHistoryDetail
}

func (m *mockEnrollmentStore) ListActiveDetailByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	return m.active, nil
}

func (m *mockEnrollmentStore) FindActive(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	if e, ok := m.activePairs[studentID+"/"+classID]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentStore) Enroll(ctx context.Context, p repository.EnrollParams) (*models.Enrollment, error) {
	if m.enrollErr != nil {
		return nil, m.enrollErr
	}
	m.enrolled = &p
	return &models.Enrollment{
		ID:         "new-enroll",
		StudentID:  p.StudentID,
		ClassID:    p.ClassID,
		Status:     models.EnrollmentStatusEnrolled,
		EnrolledAt: time.Now().UTC(),
	}, nil
}

func (m *mockEnrollmentStore) Cancel(ctx context.Context, studentID, classID, reason, note string) (*models.Enrollment, error) {
	if m.cancelErr != nil {
		return nil, m.cancelErr
	}
	m.lastReason = reason
	m.lastNote = note
	now := time.Now().UTC()
	m.cancelled = &models.Enrollment{
		ID:          "enr-1",
		StudentID:   studentID,
		ClassID:     classID,
		Status:      models.EnrollmentStatusCancelled,
		CancelledAt: &now,
	}
	return m.cancelled, nil
}

func (m *mockEnrollmentStore) ListHistoryByStudent(ctx context.Context, studentID string) ([]models.EnrollmentHistoryDetail, error) {
	return m.history, nil
}

type mockClassDetails struct {
	classes map[string]*models.ClassDetail
}

func (m *mockClassDetails) FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	if c, ok := m.classes[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockStudents struct {
	students map[string]*models.Student
}

func (m *mockStudents) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	if s, ok := m.students[userID]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func classDetail(id, courseID, scheduleStr string, capacity, enrolled int) *models.ClassDetail {
	start := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -7)
	return &models.ClassDetail{
		Class: models.Class{
			ID:        id,
			CourseID:  courseID,
			ClassCode: id + "-A",
			StartDate: start,
			EndDate:   start.AddDate(0, 3, 0),
			Schedule:  scheduleStr,
			Capacity:  capacity,
			Status:    models.ClassStatusUpcoming,
		},
		CourseName:    "Course " + courseID,
		CourseFee:     1500000,
		EnrolledCount: enrolled,
	}
}

func activeEnrollment(classID, courseID, scheduleStr string) models.EnrollmentDetail {
	start := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -7)
	return models.EnrollmentDetail{
		Enrollment: models.Enrollment{
			ID:        "enr-" + classID,
			StudentID: "s1",
			ClassID:   classID,
			Status:    models.EnrollmentStatusEnrolled,
		},
		ClassCode:      classID + "-A",
		ClassSchedule:  scheduleStr,
		ClassStartDate: start,
		ClassEndDate:   start.AddDate(0, 3, 0),
		CourseID:       courseID,
		CourseName:     "Course " + courseID,
	}
}

func newEnrollmentFixture(repo *mockEnrollmentStore, classes map[string]*models.ClassDetail) *EnrollmentService {
	students := &mockStudents{students: map[string]*models.Student{"u1": {ID: "s1", UserID: "u1", FullName: "Alice"}}}
	return NewEnrollmentService(repo, &mockClassDetails{classes: classes}, students, nil, nil, nil, TuitionRule{}, validator.New(), zap.NewNop())
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected typed error, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestEnrollHappyPath(t *testing.T) {
	repo := &mockEnrollmentStore{}
	svc := newEnrollmentFixture(repo, map[string]*models.ClassDetail{
		"c1": classDetail("c1", "go101", "MON,WED|09:00-10:30", 30, 5),
	})

	enrollment, err := svc.Enroll(context.Background(), "u1", EnrollRequest{ClassID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	require.NotNil(t, repo.enrolled)
	assert.Equal(t, "s1", repo.enrolled.StudentID)
	assert.Equal(t, 1500000.0, repo.enrolled.TuitionAmount)
	assert.Equal(t, 28*24*time.Hour, repo.enrolled.TuitionDue)
}

func TestEnrollClassNotFound(t *testing.T) {
	svc := newEnrollmentFixture(&mockEnrollmentStore{}, map[string]*models.ClassDetail{})

	_, err := svc.Enroll(context.Background(), "u1", EnrollRequest{ClassID: "missing"})
	assertCode(t, err, appErrors.ErrNotFound.Code)
}

func TestEnrollClassNotOpen(t *testing.T) {
	class := classDetail("c1", "go101", "MON|09:00-10:30", 30, 0)
	class.Status = models.ClassStatusCompleted
	svc := newEnrollmentFixture(&mockEnrollmentStore{}, map[string]*models.ClassDetail{"c1": class})

	_, err := svc.Enroll(context.Background(), "u1", EnrollRequest{ClassID: "c1"})
	assertCode(t, err, appErrors.ErrConflict.Code)
}

func TestEnrollRejectsDuplicateClass(t *testing.T) {
	repo := &mockEnrollmentStore{
		activePairs: map[string]models.Enrollment{"s1/c1": {ID: "enr-1", Status: models.EnrollmentStatusEnrolled}},
	}
	svc := newEnrollmentFixture(repo, map[string]*models.ClassDetail{
		"c1": classDetail("c1", "go101", "MON|09:00-10:30", 30, 5),
	})

	_, err := svc.Enroll(context.Background(), "u1", EnrollRequest{ClassID: "c1"})
	assertCode(t, err, appErrors.ErrConflict.Code)
}

func TestEnrollRejectsDuplicateCourse(t *testing.T) {
	repo := &mockEnrollmentStore{
		active: []models.EnrollmentDetail{activeEnrollment("c2", "go101", "FRI|13:00-15:00")},
	}
	svc := newEnrollmentFixture(repo, map[string]*models.ClassDetail{
		"c1": classDetail("c1", "go101", "MON|09:00-10:30", 30, 5),
	})

	_, err := svc.Enroll(context.Background(), "u1", EnrollRequest{ClassID: "c1"})
	assertCode(t, err, appErrors.ErrConflict.Code)
	assert.Contains(t, err.Error(), "Course go101")
}

func TestEnrollRejectsScheduleConflict(t *testing.T) {
	repo := &mockEnrollmentStore{
		active: []models.EnrollmentDetail{activeEnrollment("c2", "db201", "MON,WED|10:00-12:00")},
	}
	svc := newEnrollmentFixture(repo, map[string]*models.ClassDetail{
		"c1": classDetail("c1", "go101", "WED,FRI|11:00-13:00", 30, 5),
	})

	_, err := svc.Enroll(context.Background(), "u1", EnrollRequest{ClassID: "c1"})
	assertCode(t, err, appErrors.ErrConflict.Code)
	assert.Contains(t, err.Error(), "Course db201")
	assert.Contains(t, err.Error(), "c2-A")
}

func TestEnrollAllowsBackToBackTimes(t *testing.T) {
	repo := &mockEnrollmentStore{
		active: []models.EnrollmentDetail{activeEnrollment("c2", "db201", "MON|08:00-10:00")},
	}
	svc := newEnrollmentFixture(repo, map[string]*models.ClassDetail{
		"c1": classDetail("c1", "go101", "MON|10:00-12:00", 30, 5),
	})

	_, err := svc.Enroll(context.Background(), "u1", EnrollRequest{ClassID: "c1"})
	require.NoError(t, err)
}

func TestEnrollFailsOnUnparseableStoredSchedule(t *testing.T) {
	repo := &mockEnrollmentStore{
		active: []models.EnrollmentDetail{activeEnrollment("c2", "db201", "garbage")},
	}
	svc := newEnrollmentFixture(repo, map[string]*models.ClassDetail{
		"c1": classDetail("c1", "go101", "MON|09:00-10:30", 30, 5),
	})

	_, err := svc.Enroll(context.Background(), "u1", EnrollRequest{ClassID: "c1"})
	assertCode(t, err, appErrors.ErrScheduleData.Code)
}

func TestEnrollRejectsFullClass(t *testing.T) {
	svc := newEnrollmentFixture(&mockEnrollmentStore{}, map[string]*models.ClassDetail{
		"c1": classDetail("c1", "go101", "MON|09:00-10:30", 20, 20),
	})

	_, err := svc.Enroll(context.Background(), "u1", EnrollRequest{ClassID: "c1"})
	assertCode(t, err, appErrors.ErrConflict.Code)
	assert.Contains(t, err.Error(), "full")
}

func TestEnrollMapsTransactionRejections(t *testing.T) {
	repo := &mockEnrollmentStore{enrollErr: repository.ErrClassFull}
	svc := newEnrollmentFixture(repo, map[string]*models.ClassDetail{
		"c1": classDetail("c1", "go101", "MON|09:00-10:30", 30, 29),
	})

	_, err := svc.Enroll(context.Background(), "u1", EnrollRequest{ClassID: "c1"})
	assertCode(t, err, appErrors.ErrConflict.Code)
}

func TestUnenrollDefaultsReason(t *testing.T) {
	repo := &mockEnrollmentStore{}
	svc := newEnrollmentFixture(repo, nil)

	enrollment, err := svc.Unenroll(context.Background(), "u1", "c1", UnenrollRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCancelled, enrollment.Status)
	assert.Equal(t, DefaultCancelReason, repo.lastReason)
}

func TestUnenrollKeepsGivenReason(t *testing.T) {
	repo := &mockEnrollmentStore{}
	svc := newEnrollmentFixture(repo, nil)

	_, err := svc.Unenroll(context.Background(), "u1", "c1", UnenrollRequest{Reason: "moving abroad", Note: "see email"})
	require.NoError(t, err)
	assert.Equal(t, "moving abroad", repo.lastReason)
	assert.Equal(t, "see email", repo.lastNote)
}

func TestUnenrollWithoutActiveEnrollment(t *testing.T) {
	repo := &mockEnrollmentStore{cancelErr: sql.ErrNoRows}
	svc := newEnrollmentFixture(repo, nil)

	_, err := svc.Unenroll(context.Background(), "u1", "c1", UnenrollRequest{})
	assertCode(t, err, appErrors.ErrNotFound.Code)
}

func TestMyScheduleSortsByDayThenTime(t *testing.T) {
	repo := &mockEnrollmentStore{
		active: []models.EnrollmentDetail{
			activeEnrollment("c2", "db201", "WED,MON|13:00-15:00"),
			activeEnrollment("c1", "go101", "MON|08:00-10:00"),
		},
	}
	svc := newEnrollmentFixture(repo, nil)

	entries, err := svc.MySchedule(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "MON", entries[0].Day)
	assert.Equal(t, "08:00", entries[0].StartTime)
	assert.Equal(t, "MON", entries[1].Day)
	assert.Equal(t, "13:00", entries[1].StartTime)
	assert.Equal(t, "WED", entries[2].Day)
}

func TestEnrollMissingStudentProfile(t *testing.T) {
	repo := &mockEnrollmentStore{}
	students := &mockStudents{students: map[string]*models.Student{}}
	svc := NewEnrollmentService(repo, &mockClassDetails{}, students, nil, nil, nil, TuitionRule{}, validator.New(), zap.NewNop())

	_, err := svc.Enroll(context.Background(), "ghost", EnrollRequest{ClassID: "c1"})
	assertCode(t, err, appErrors.ErrNotFound.Code)
}
