package models

import "time"

// ClassStatus represents the lifecycle of a scheduled class.
type ClassStatus string

// Possible class statuses. Only upcoming and ongoing classes accept enrollments.
const (
	ClassStatusUpcoming  ClassStatus = "UPCOMING"
	ClassStatusOngoing   ClassStatus = "ONGOING"
	ClassStatusCompleted ClassStatus = "COMPLETED"
	ClassStatusCancelled ClassStatus = "CANCELLED"
)

// Enrollable reports whether the class status accepts new enrollments.
func (s ClassStatus) Enrollable() bool {
	return s == ClassStatusUpcoming || s == ClassStatusOngoing
}

// Class represents one scheduled offering of a course by an instructor.
// Schedule is a compact weekly recurrence string, e.g. "MON,WED|07:00-09:00".
type Class struct {
	ID           string      `db:"id" json:"id"`
	CourseID     string      `db:"course_id" json:"course_id"`
	InstructorID string      `db:"instructor_id" json:"instructor_id"`
	ClassCode    string      `db:"class_code" json:"class_code"`
	StartDate    time.Time   `db:"start_date" json:"start_date"`
	EndDate      time.Time   `db:"end_date" json:"end_date"`
	Schedule     string      `db:"schedule" json:"schedule"`
	Room         string      `db:"room" json:"room"`
	Capacity     int         `db:"capacity" json:"capacity"`
	Status       ClassStatus `db:"status" json:"status"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends Class with course, instructor and occupancy info.
type ClassDetail struct {
	Class
	CourseCode     string  `db:"course_code" json:"course_code"`
	CourseName     string  `db:"course_name" json:"course_name"`
	CourseFee      float64 `db:"course_fee" json:"course_fee"`
	InstructorName string  `db:"instructor_name" json:"instructor_name"`
	EnrolledCount  int     `db:"enrolled_count" json:"enrolled_count"`
}

// ClassProgress reports lesson counts derived from the class schedule.
type ClassProgress struct {
	ClassID          string `json:"class_id"`
	TotalLessons     int    `json:"total_lessons"`
	CompletedLessons int    `json:"completed_lessons"`
	RemainingLessons int    `json:"remaining_lessons"`
}

// RosterEntry is one line of a class roster export.
type RosterEntry struct {
	StudentCode string    `db:"student_code" json:"student_code"`
	FullName    string    `db:"full_name" json:"full_name"`
	Phone       string    `db:"phone" json:"phone"`
	EnrolledAt  time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	CourseID     string
	InstructorID string
	Status       ClassStatus
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
