package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/edu-course-api/internal/middleware"
	"github.com/noah-isme/edu-course-api/internal/models"
	"github.com/noah-isme/edu-course-api/internal/service"
	appErrors "github.com/noah-isme/edu-course-api/pkg/errors"
)

type fakeEnrollmentSrv struct {
	enrollment *models.Enrollment
	enrollErr  error
	schedule   []service.ScheduleEntry
	lastUser   string
	lastClass  string
	lastEnroll service.EnrollRequest
}

func (f *fakeEnrollmentSrv) Enroll(_ context.Context, userID string, req service.EnrollRequest) (*models.Enrollment, error) {
	f.lastUser = userID
	f.lastEnroll = req
	return f.enrollment, f.enrollErr
}

func (f *fakeEnrollmentSrv) Unenroll(_ context.Context, userID, classID string, _ service.UnenrollRequest) (*models.Enrollment, error) {
	f.lastUser = userID
	f.lastClass = classID
	return f.enrollment, f.enrollErr
}

func (f *fakeEnrollmentSrv) MyEnrollments(context.Context, string) ([]models.EnrollmentDetail, error) {
	return nil, nil
}

func (f *fakeEnrollmentSrv) History(context.Context, string) ([]models.EnrollmentHistoryDetail, error) {
	return nil, nil
}

func (f *fakeEnrollmentSrv) MySchedule(_ context.Context, userID string) ([]service.ScheduleEntry, error) {
	f.lastUser = userID
	return f.schedule, nil
}

func TestEnrollmentHandlerEnrollRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewEnrollmentHandler(&fakeEnrollmentSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/enrollments", strings.NewReader(`{"class_id":"cls-1"}`))

	handler.Enroll(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestEnrollmentHandlerEnrollSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeEnrollmentSrv{enrollment: &models.Enrollment{ID: "enr-1", ClassID: "cls-1", Status: models.EnrollmentStatusEnrolled}}
	handler := NewEnrollmentHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/enrollments", strings.NewReader(`{"class_id":"cls-1","note":"first pick"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})

	handler.Enroll(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "user-1", srv.lastUser)
	assert.Equal(t, "cls-1", srv.lastEnroll.ClassID)
	assert.Equal(t, "first pick", srv.lastEnroll.Note)
}

func TestEnrollmentHandlerEnrollConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeEnrollmentSrv{enrollErr: appErrors.Clone(appErrors.ErrConflict, "class is full")}
	handler := NewEnrollmentHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/enrollments", strings.NewReader(`{"class_id":"cls-1"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})

	handler.Enroll(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	assert.Equal(t, appErrors.ErrConflict.Code, envelope.Error.Code)
	assert.Equal(t, "class is full", envelope.Error.Message)
}

func TestEnrollmentHandlerUnenrollPassesClassParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeEnrollmentSrv{enrollment: &models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusCancelled}}
	handler := NewEnrollmentHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodDelete, "/enrollments/cls-9", nil)
	c.Params = gin.Params{{Key: "classId", Value: "cls-9"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})

	handler.Unenroll(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cls-9", srv.lastClass)
}

func TestEnrollmentHandlerScheduleSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeEnrollmentSrv{schedule: []service.ScheduleEntry{{Day: "MON", StartTime: "08:00", EndTime: "10:00", CourseCode: "MATH101"}}}
	handler := NewEnrollmentHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/me/schedule", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})

	handler.Schedule(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data []map[string]interface{} `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	assert.Len(t, envelope.Data, 1)
	assert.Equal(t, "MATH101", envelope.Data[0]["course_code"])
}
