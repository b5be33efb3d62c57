package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-course-api/internal/models"
	appErrors "github.com/noah-isme/edu-course-api/pkg/errors"
	"github.com/noah-isme/edu-course-api/pkg/export"
	"github.com/noah-isme/edu-course-api/pkg/storage"
)

type rosterSource interface {
	FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error)
	ListRoster(ctx context.Context, classID string) ([]models.RosterEntry, error)
}

type tuitionDetailReader interface {
	FindDetailByID(ctx context.Context, id, studentID string) (*models.TuitionDetail, error)
}

// ExportResult points at a generated file through a signed download token.
type ExportResult struct {
	FileName  string    `json:"file_name"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExportService renders roster CSVs and tuition receipts, storing roster
// files on disk behind signed download tokens.
type ExportService struct {
	classes  rosterSource
	tuitions tuitionDetailReader
	students studentResolver
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	store    *storage.LocalStorage
	signer   *storage.SignedURLSigner
	activity activityRecorder
	logger   *zap.Logger
}

// NewExportService constructs ExportService.
func NewExportService(classes rosterSource, tuitions tuitionDetailReader, students studentResolver, store *storage.LocalStorage, signer *storage.SignedURLSigner, activity activityRecorder, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		classes:  classes,
		tuitions: tuitions,
		students: students,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		store:    store,
		signer:   signer,
		activity: activity,
		logger:   logger,
	}
}

// RosterCSV renders the active roster of a class to CSV, stores it and
// returns a signed download token.
func (s *ExportService) RosterCSV(ctx context.Context, adminUserID, classID string) (*ExportResult, error) {
	class, err := s.classes.FindDetailByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	roster, err := s.classes.ListRoster(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	dataset := export.Dataset{
		Headers: []string{"Student Code", "Full Name", "Phone", "Enrolled At"},
		Rows:    make([]map[string]string, 0, len(roster)),
	}
	for _, entry := range roster {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student Code": entry.StudentCode,
			"Full Name":    entry.FullName,
			"Phone":        entry.Phone,
			"Enrolled At":  entry.EnrolledAt.Format("2006-01-02 15:04"),
		})
	}

	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster csv")
	}

	fileName := fmt.Sprintf("rosters/%s-%d.csv", class.ClassCode, time.Now().Unix())
	relPath, err := s.store.Save(fileName, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store roster csv")
	}

	jobID := uuid.NewString()
	token, expiresAt, err := s.signer.Generate(jobID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}

	if s.activity != nil {
		values, _ := json.Marshal(map[string]string{"class_id": classID, "file": relPath})
		s.activity.Record(&models.AuditLog{
			UserID:     &adminUserID,
			Action:     models.AuditActionRosterExport,
			Resource:   "class",
			ResourceID: &classID,
			NewValues:  values,
		})
	}

	return &ExportResult{FileName: filepath.Base(relPath), Token: token, ExpiresAt: expiresAt}, nil
}

// Receipt renders a PDF receipt for a paid tuition and returns the bytes
// with a suggested filename.
func (s *ExportService) Receipt(ctx context.Context, userID, tuitionID string) ([]byte, string, error) {
	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}

	tuition, err := s.tuitions.FindDetailByID(ctx, tuitionID, student.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "tuition not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tuition")
	}
	if tuition.Status != models.TuitionStatusPaid {
		return nil, "", appErrors.Clone(appErrors.ErrConflict, "receipt is only available for paid tuition")
	}

	paidAt := ""
	if tuition.PaidAt != nil {
		paidAt = tuition.PaidAt.Format("2006-01-02 15:04")
	}
	dataset := export.Dataset{
		Headers: []string{"Field", "Value"},
		Rows: []map[string]string{
			{"Field": "Receipt ID", "Value": tuition.ID},
			{"Field": "Student", "Value": student.FullName},
			{"Field": "Student Code", "Value": student.StudentCode},
			{"Field": "Course", "Value": fmt.Sprintf("%s %s", tuition.CourseCode, tuition.CourseName)},
			{"Field": "Class", "Value": tuition.ClassCode},
			{"Field": "Amount", "Value": fmt.Sprintf("%.2f", tuition.Amount)},
			{"Field": "Paid At", "Value": paidAt},
		},
	}

	payload, err := s.pdf.Render(dataset, "Tuition Receipt")
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return payload, fmt.Sprintf("receipt-%s.pdf", tuition.ID), nil
}

// Download resolves a signed token to the stored file.
func (s *ExportService) Download(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file not found")
	}
	return file, filepath.Base(relPath), nil
}
