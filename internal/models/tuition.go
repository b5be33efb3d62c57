package models

import "time"

// TuitionStatus represents the payment lifecycle of a tuition obligation.
type TuitionStatus string

const (
	TuitionStatusPending    TuitionStatus = "PENDING"
	TuitionStatusProcessing TuitionStatus = "PROCESSING"
	TuitionStatusPaid       TuitionStatus = "PAID"
	TuitionStatusOverdue    TuitionStatus = "OVERDUE"
)

// Tuition is the fee obligation generated when a student enrolls. Exactly one
// row exists per enrollment; amount captures the course fee at enrollment time.
type Tuition struct {
	ID           string        `db:"id" json:"id"`
	StudentID    string        `db:"student_id" json:"student_id"`
	EnrollmentID string        `db:"enrollment_id" json:"enrollment_id"`
	Amount       float64       `db:"amount" json:"amount"`
	DueDate      time.Time     `db:"due_date" json:"due_date"`
	Status       TuitionStatus `db:"status" json:"status"`
	PaidAt       *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

// TuitionDetail extends Tuition with course display fields.
type TuitionDetail struct {
	Tuition
	CourseCode string `db:"course_code" json:"course_code"`
	CourseName string `db:"course_name" json:"course_name"`
	ClassCode  string `db:"class_code" json:"class_code"`
}

// PaymentStatus represents the lifecycle of a tuition payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

// TuitionPayment records one payment attempt against a tuition obligation.
type TuitionPayment struct {
	ID            string        `db:"id" json:"id"`
	TuitionID     string        `db:"tuition_id" json:"tuition_id"`
	StudentID     string        `db:"student_id" json:"student_id"`
	Amount        float64       `db:"amount" json:"amount"`
	Method        string        `db:"method" json:"method"`
	TransactionID string        `db:"transaction_id" json:"transaction_id"`
	Status        PaymentStatus `db:"status" json:"status"`
	Notes         string        `db:"notes" json:"notes"`
	PaymentDate   time.Time     `db:"payment_date" json:"payment_date"`
}
