package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-course-api/internal/models"
	appErrors "github.com/noah-isme/edu-course-api/pkg/errors"
)

type mockClassStore struct {
	classes map[string]*models.Class
	details map[string]*models.ClassDetail
	created *models.Class
}

func (m *mockClassStore) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassStore) FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	if d, ok := m.details[id]; ok {
		return d, nil
	}
	if c, ok := m.classes[id]; ok {
		return &models.ClassDetail{Class: *c}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassStore) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	var out []models.ClassDetail
	for _, d := range m.details {
		out = append(out, *d)
	}
	return out, len(out), nil
}

func (m *mockClassStore) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = "new-class"
	}
	if m.classes == nil {
		m.classes = map[string]*models.Class{}
	}
	m.classes[class.ID] = class
	m.created = class
	return nil
}

type mockCourses struct{ missing bool }

func (m *mockCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if m.missing {
		return nil, sql.ErrNoRows
	}
	return &models.Course{ID: id, Fee: 1500000}, nil
}

type mockInstructors struct{ missing bool }

func (m *mockInstructors) FindByID(ctx context.Context, id string) (*models.Instructor, error) {
	if m.missing {
		return nil, sql.ErrNoRows
	}
	return &models.Instructor{ID: id}, nil
}

func newClassFixture(repo *mockClassStore) *ClassService {
	return NewClassService(repo, &mockCourses{}, &mockInstructors{}, nil, nil, time.Minute, validator.New(), zap.NewNop())
}

func validCreateRequest() CreateClassRequest {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	return CreateClassRequest{
		CourseID:     "go101",
		InstructorID: "i1",
		ClassCode:    "GO-101-A",
		StartDate:    start,
		EndDate:      start.AddDate(0, 3, 0),
		Schedule:     "MON,WED|09:00-10:30",
		Room:         "R201",
		Capacity:     30,
	}
}

func TestClassCreateHappyPath(t *testing.T) {
	repo := &mockClassStore{}
	svc := newClassFixture(repo)

	detail, err := svc.Create(context.Background(), "admin-1", validCreateRequest())
	require.NoError(t, err)
	assert.Equal(t, models.ClassStatusUpcoming, detail.Status)
	require.NotNil(t, repo.created)
	assert.Equal(t, "GO-101-A", repo.created.ClassCode)
}

func TestClassCreateRejectsBadSchedule(t *testing.T) {
	svc := newClassFixture(&mockClassStore{})
	req := validCreateRequest()
	req.Schedule = "MONDAY 9am"

	_, err := svc.Create(context.Background(), "admin-1", req)
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestClassCreateRejectsInvertedDates(t *testing.T) {
	svc := newClassFixture(&mockClassStore{})
	req := validCreateRequest()
	req.EndDate = req.StartDate.AddDate(0, 0, -1)

	_, err := svc.Create(context.Background(), "admin-1", req)
	assertCode(t, err, appErrors.ErrValidation.Code)
}

func TestClassCreateUnknownCourse(t *testing.T) {
	svc := NewClassService(&mockClassStore{}, &mockCourses{missing: true}, &mockInstructors{}, nil, nil, time.Minute, validator.New(), zap.NewNop())

	_, err := svc.Create(context.Background(), "admin-1", validCreateRequest())
	assertCode(t, err, appErrors.ErrNotFound.Code)
}

func TestClassProgressCompletedRange(t *testing.T) {
	repo := &mockClassStore{classes: map[string]*models.Class{"c1": {
		ID:        "c1",
		Schedule:  "MON,WED,FRI|07:30-09:00",
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 29, 0, 0, 0, 0, time.UTC),
	}}}
	svc := newClassFixture(repo)

	progress, err := svc.Progress(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 13, progress.TotalLessons)
	assert.Equal(t, 13, progress.CompletedLessons)
	assert.Equal(t, 0, progress.RemainingLessons)
}

func TestClassProgressFutureRange(t *testing.T) {
	start := time.Now().AddDate(1, 0, 0)
	repo := &mockClassStore{classes: map[string]*models.Class{"c1": {
		ID:        "c1",
		Schedule:  "TUE,THU|10:00-12:00",
		StartDate: start,
		EndDate:   start.AddDate(0, 1, 0),
	}}}
	svc := newClassFixture(repo)

	progress, err := svc.Progress(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, progress.CompletedLessons)
	assert.Equal(t, progress.TotalLessons, progress.RemainingLessons)
}

func TestClassProgressBadScheduleData(t *testing.T) {
	repo := &mockClassStore{classes: map[string]*models.Class{"c1": {
		ID:       "c1",
		Schedule: "not-a-schedule",
	}}}
	svc := newClassFixture(repo)

	_, err := svc.Progress(context.Background(), "c1")
	assertCode(t, err, appErrors.ErrScheduleData.Code)
}

func TestClassGetNotFound(t *testing.T) {
	svc := newClassFixture(&mockClassStore{})

	_, err := svc.Get(context.Background(), "missing")
	assertCode(t, err, appErrors.ErrNotFound.Code)
}
