package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. A cancelled row is reactivated on
// re-enrollment instead of creating a duplicate.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "ENROLLED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
)

// EnrollmentAction identifies a transition recorded in the history ledger.
type EnrollmentAction string

const (
	EnrollmentActionEnrolled  EnrollmentAction = "ENROLLED"
	EnrollmentActionCancelled EnrollmentAction = "CANCELLED"
)

// Enrollment captures a student's registration to a class. At most one row
// exists per (student_id, class_id) pair.
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	ClassID     string           `db:"class_id" json:"class_id"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt  time.Time        `db:"enrolled_at" json:"enrolled_at"`
	CancelledAt *time.Time       `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// EnrollmentDetail enriches Enrollment with class, course and instructor info
// for display and for schedule conflict checks against existing enrollments.
type EnrollmentDetail struct {
	Enrollment
	ClassCode      string    `db:"class_code" json:"class_code"`
	ClassSchedule  string    `db:"class_schedule" json:"class_schedule"`
	ClassRoom      string    `db:"class_room" json:"class_room"`
	ClassStartDate time.Time `db:"class_start_date" json:"class_start_date"`
	ClassEndDate   time.Time `db:"class_end_date" json:"class_end_date"`
	CourseID       string    `db:"course_id" json:"course_id"`
	CourseCode     string    `db:"course_code" json:"course_code"`
	CourseName     string    `db:"course_name" json:"course_name"`
	CourseCredits  int       `db:"course_credits" json:"course_credits"`
	CourseFee      float64   `db:"course_fee" json:"course_fee"`
	InstructorName string    `db:"instructor_name" json:"instructor_name"`
}

// EnrollmentHistory is an append-only ledger entry recording one enroll or
// cancel transition. Rows are never mutated or deleted.
type EnrollmentHistory struct {
	ID           string           `db:"id" json:"id"`
	EnrollmentID string           `db:"enrollment_id" json:"enrollment_id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	ClassID      string           `db:"class_id" json:"class_id"`
	Action       EnrollmentAction `db:"action" json:"action"`
	ActionDate   time.Time        `db:"action_date" json:"action_date"`
	Reason       *string          `db:"reason" json:"reason,omitempty"`
	Note         *string          `db:"note" json:"note,omitempty"`
}

// EnrollmentHistoryDetail enriches history entries with class/course labels.
type EnrollmentHistoryDetail struct {
	EnrollmentHistory
	ClassCode  string `db:"class_code" json:"class_code"`
	CourseCode string `db:"course_code" json:"course_code"`
	CourseName string `db:"course_name" json:"course_name"`
}
