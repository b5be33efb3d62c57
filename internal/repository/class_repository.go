package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edu-course-api/internal/models"
)

// ClassRepository handles persistence of classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

const classColumns = `id, course_id, instructor_id, class_code, start_date, end_date, schedule, room, capacity, status, created_at, updated_at`

// FindByID returns a class by its ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindDetailByID returns a class joined with course, instructor and the count
// of active enrollments.
func (r *ClassRepository) FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	const query = `SELECT cl.id, cl.course_id, cl.instructor_id, cl.class_code, cl.start_date, cl.end_date,
        cl.schedule, cl.room, cl.capacity, cl.status, cl.created_at, cl.updated_at,
        co.code AS course_code, co.name AS course_name, co.fee AS course_fee,
        i.full_name AS instructor_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.class_id = cl.id AND e.status = 'ENROLLED') AS enrolled_count
        FROM classes cl
        JOIN courses co ON co.id = cl.course_id
        JOIN instructors i ON i.id = cl.instructor_id
        WHERE cl.id = $1`
	var detail models.ClassDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns classes filtered by the provided criteria with a total count.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	base := `FROM classes cl
JOIN courses co ON co.id = cl.course_id
JOIN instructors i ON i.id = cl.instructor_id`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("cl.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("cl.instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("cl.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(cl.class_code ILIKE $%d OR co.name ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"start_date":  "cl.start_date",
		"class_code":  "cl.class_code",
		"course_name": "co.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "cl.start_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT cl.id, cl.course_id, cl.instructor_id, cl.class_code, cl.start_date, cl.end_date,
        cl.schedule, cl.room, cl.capacity, cl.status, cl.created_at, cl.updated_at,
        co.code AS course_code, co.name AS course_name, co.fee AS course_fee,
        i.full_name AS instructor_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.class_id = cl.id AND e.status = 'ENROLLED') AS enrolled_count
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// Create persists a new class record.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now
	if class.Status == "" {
		class.Status = models.ClassStatusUpcoming
	}
	const query = `INSERT INTO classes (id, course_id, instructor_id, class_code, start_date, end_date, schedule, room, capacity, status, created_at, updated_at)
        VALUES (:id, :course_id, :instructor_id, :class_code, :start_date, :end_date, :schedule, :room, :capacity, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// ListRoster returns active enrollments for a class with student identity,
// used by the roster export.
func (r *ClassRepository) ListRoster(ctx context.Context, classID string) ([]models.RosterEntry, error) {
	const query = `SELECT s.student_code, s.full_name, s.phone, e.enrolled_at
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        WHERE e.class_id = $1 AND e.status = 'ENROLLED'
        ORDER BY s.full_name ASC`
	var roster []models.RosterEntry
	if err := r.db.SelectContext(ctx, &roster, query, classID); err != nil {
		return nil, fmt.Errorf("list class roster: %w", err)
	}
	return roster, nil
}
