package enrollment

import (
	"errors"
	"math"
	"time"
)

var (
	ErrAlreadyEnrolled   = errors.New("already enrolled in this course")
	ErrNotEnrolled       = errors.New("not enrolled in this course")
	ErrLectureNotFound   = errors.New("lecture not found in this course")
	ErrPaymentRequired   = errors.New("this course must be purchased before enrolling")
	ErrInvalidTransition = errors.New("enrollment status cannot change that way")
)

type Status string

const (
	Active    Status = "active"
	Completed Status = "completed"
	Cancelled Status = "cancelled"
)

const (
	SourceSelf    = "self"
	SourcePayment = "payment"
	SourceSweep   = "sweep"
)

type Progress struct {
	LecturesCompleted    []string   `json:"lecturesCompleted"`
	CompletionPercentage int        `json:"completionPercentage"`
	LastAccessedDate     *time.Time `json:"lastAccessedDate"`
}

type Enrollment struct {
	ID             string    `json:"id"`
	StudentID      string    `json:"studentId"`
	CourseID       string    `json:"courseId"`
	EnrollmentDate time.Time `json:"enrollmentDate"`
	PaymentID      *string   `json:"paymentId"`
	Amount         float64   `json:"amount"`
	Status         Status    `json:"status"`
	Progress       Progress  `json:"progress"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type EnrollmentNew struct {
	StudentID string
	CourseID  string
	PaymentID *string
	Amount    float64
	Source    string
}

type SelfEnrollNew struct {
	CourseID  string  `json:"courseId" validate:"required,uuid"`
	PaymentID *string `json:"paymentId" validate:"omitempty,uuid"`
	Amount    float64 `json:"amount" validate:"money"`
}

type LectureMark struct {
	CourseID  string `json:"courseId" validate:"required,uuid"`
	LectureID string `json:"lectureId" validate:"required"`
}

type CourseRef struct {
	CourseID string `json:"courseId" validate:"required,uuid"`
}

type CourseSummary struct {
	ID           string `json:"id" db:"course_id"`
	Title        string `json:"courseTitle" db:"title"`
	ThumbnailURL string `json:"courseThumbnail" db:"thumbnail_url"`
}

type WithCourse struct {
	Enrollment
	Course CourseSummary `json:"course"`
}

type Dashboard struct {
	TotalEnrollments  int          `json:"totalEnrollments"`
	CompletedCourses  int          `json:"completedCourses"`
	InProgress        int          `json:"inProgress"`
	RecentEnrollments []WithCourse `json:"recentEnrollments"`
}

// Percentage is round(100*completed/total). A course without lectures is
// 0% complete, and lectures removed after completion never push it past
// 100.
func Percentage(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}

	p := int(math.Round(100 * float64(completed) / float64(total)))
	if p > 100 {
		p = 100
	}
	return p
}

// CanTransition encodes the status machine: active moves to completed or
// cancelled, completed to cancelled, and cancelled is terminal.
func CanTransition(from, to Status) bool {
	switch from {
	case Active:
		return to == Completed || to == Cancelled
	case Completed:
		return to == Cancelled
	}
	return false
}

// advance is the status after a progress change.
func advance(s Status, percentage int) Status {
	if s == Active && percentage == 100 {
		return Completed
	}
	return s
}

func (e Enrollment) HasAccess() bool {
	return e.Status == Active || e.Status == Completed
}
