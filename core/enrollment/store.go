package enrollment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/course-enrollment/database"
	"github.com/jmoiron/sqlx"
)

type dbEnrollment struct {
	ID                   string         `db:"enrollment_id"`
	StudentID            string         `db:"student_id"`
	CourseID             string         `db:"course_id"`
	EnrollmentDate       time.Time      `db:"enrollment_date"`
	PaymentID            sql.NullString `db:"payment_id"`
	Amount               float64        `db:"amount"`
	Status               Status         `db:"status"`
	CompletionPercentage int            `db:"completion_percentage"`
	LastAccessedDate     sql.NullTime   `db:"last_accessed_date"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func toDB(e Enrollment) dbEnrollment {
	d := dbEnrollment{
		ID:                   e.ID,
		StudentID:            e.StudentID,
		CourseID:             e.CourseID,
		EnrollmentDate:       e.EnrollmentDate,
		Amount:               e.Amount,
		Status:               e.Status,
		CompletionPercentage: e.Progress.CompletionPercentage,
		CreatedAt:            e.CreatedAt,
		UpdatedAt:            e.UpdatedAt,
	}
	if e.PaymentID != nil {
		d.PaymentID = sql.NullString{String: *e.PaymentID, Valid: true}
	}
	if e.Progress.LastAccessedDate != nil {
		d.LastAccessedDate = sql.NullTime{Time: *e.Progress.LastAccessedDate, Valid: true}
	}
	return d
}

func (d dbEnrollment) toCore(lectures []string) Enrollment {
	e := Enrollment{
		ID:             d.ID,
		StudentID:      d.StudentID,
		CourseID:       d.CourseID,
		EnrollmentDate: d.EnrollmentDate.UTC(),
		Amount:         d.Amount,
		Status:         d.Status,
		Progress: Progress{
			LecturesCompleted:    lectures,
			CompletionPercentage: d.CompletionPercentage,
		},
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	if e.Progress.LecturesCompleted == nil {
		e.Progress.LecturesCompleted = []string{}
	}
	if d.PaymentID.Valid {
		id := d.PaymentID.String
		e.PaymentID = &id
	}
	if d.LastAccessedDate.Valid {
		t := d.LastAccessedDate.Time.UTC()
		e.Progress.LastAccessedDate = &t
	}
	return e
}

const columns = `enrollment_id, student_id, course_id, enrollment_date, payment_id, amount, status,
	completion_percentage, last_accessed_date, created_at, updated_at`

// Create inserts the row. The (student_id, course_id) unique key makes a
// concurrent duplicate fail with database.ErrDBDuplicatedEntry.
func Create(ctx context.Context, db sqlx.ExtContext, e Enrollment) error {
	const q = `
	INSERT INTO enrollments (enrollment_id, student_id, course_id, enrollment_date, payment_id, amount,
		status, completion_percentage, last_accessed_date, created_at, updated_at)
	VALUES (:enrollment_id, :student_id, :course_id, :enrollment_date, :payment_id, :amount,
		:status, :completion_percentage, :last_accessed_date, :created_at, :updated_at)`

	if err := database.NamedExecContext(ctx, db, q, toDB(e)); err != nil {
		return fmt.Errorf("inserting enrollment: %w", err)
	}
	return nil
}

func FetchByStudentCourse(ctx context.Context, db sqlx.ExtContext, studentID, courseID string) (Enrollment, error) {
	return fetch(ctx, db, `SELECT `+columns+` FROM enrollments WHERE student_id = $1 AND course_id = $2`, studentID, courseID)
}

// lockByStudentCourse must run inside a transaction; it serialises progress
// writes on one enrollment.
func lockByStudentCourse(ctx context.Context, tx sqlx.ExtContext, studentID, courseID string) (Enrollment, error) {
	return fetch(ctx, tx, `SELECT `+columns+` FROM enrollments WHERE student_id = $1 AND course_id = $2 FOR UPDATE`, studentID, courseID)
}

func fetch(ctx context.Context, db sqlx.ExtContext, q string, args ...any) (Enrollment, error) {
	var d dbEnrollment
	if err := database.GetContext(ctx, db, &d, q, args...); err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return Enrollment{}, ErrNotEnrolled
		}
		return Enrollment{}, fmt.Errorf("selecting enrollment: %w", err)
	}

	lectures, err := completedLectures(ctx, db, d.ID)
	if err != nil {
		return Enrollment{}, err
	}

	return d.toCore(lectures), nil
}

func completedLectures(ctx context.Context, db sqlx.ExtContext, id string) ([]string, error) {
	const q = `SELECT lecture_id FROM enrollment_lectures WHERE enrollment_id = $1 ORDER BY completed_at, lecture_id`

	lectures := []string{}
	if err := database.SelectContext(ctx, db, &lectures, q, id); err != nil {
		return nil, fmt.Errorf("selecting lectures of enrollment[%s]: %w", id, err)
	}
	return lectures, nil
}

// AddLecture is an atomic add-if-absent; it reports whether the lecture was
// new.
func AddLecture(ctx context.Context, db sqlx.ExtContext, id, lectureID string, now time.Time) (bool, error) {
	const q = `
	INSERT INTO enrollment_lectures (enrollment_id, lecture_id, completed_at) VALUES ($1, $2, $3)
	ON CONFLICT DO NOTHING`

	res, err := db.ExecContext(ctx, q, id, lectureID, now)
	if err != nil {
		return false, fmt.Errorf("adding lecture[%s] to enrollment[%s]: %w", lectureID, id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func CountCompleted(ctx context.Context, db sqlx.ExtContext, id string) (int, error) {
	const q = `SELECT count(*) FROM enrollment_lectures WHERE enrollment_id = $1`

	var n int
	if err := database.GetContext(ctx, db, &n, q, id); err != nil {
		return 0, fmt.Errorf("counting lectures of enrollment[%s]: %w", id, err)
	}
	return n, nil
}

type ProgressUp struct {
	ID               string    `db:"enrollment_id"`
	Percentage       int       `db:"completion_percentage"`
	Status           Status    `db:"status"`
	LastAccessedDate time.Time `db:"last_accessed_date"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func UpdateProgress(ctx context.Context, db sqlx.ExtContext, up ProgressUp) error {
	const q = `
	UPDATE enrollments SET
		completion_percentage = :completion_percentage,
		status = :status,
		last_accessed_date = :last_accessed_date,
		updated_at = :updated_at
	WHERE enrollment_id = :enrollment_id`

	if err := database.NamedExecContext(ctx, db, q, up); err != nil {
		return fmt.Errorf("updating progress of enrollment[%s]: %w", up.ID, err)
	}
	return nil
}

func UpdateStatus(ctx context.Context, db sqlx.ExtContext, id string, status Status, now time.Time) error {
	const q = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE enrollment_id = $1`

	if _, err := db.ExecContext(ctx, q, id, status, now); err != nil {
		return fmt.Errorf("updating status of enrollment[%s]: %w", id, err)
	}
	return nil
}

// QueryByStudent lists non-cancelled enrollments, newest first. limit <= 0
// means no limit.
func QueryByStudent(ctx context.Context, db sqlx.ExtContext, studentID string, limit int) ([]WithCourse, error) {
	q := `
	SELECT e.enrollment_id, e.student_id, e.course_id, e.enrollment_date, e.payment_id, e.amount, e.status,
		e.completion_percentage, e.last_accessed_date, e.created_at, e.updated_at,
		c.title, c.thumbnail_url
	FROM enrollments e
	JOIN courses c ON c.course_id = e.course_id
	WHERE e.student_id = $1 AND e.status <> 'cancelled'
	ORDER BY e.enrollment_date DESC`

	args := []any{studentID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	var rows []struct {
		dbEnrollment
		Title        string `db:"title"`
		ThumbnailURL string `db:"thumbnail_url"`
	}
	if err := database.SelectContext(ctx, db, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("selecting enrollments of student[%s]: %w", studentID, err)
	}

	out := make([]WithCourse, 0, len(rows))
	for _, r := range rows {
		lectures, err := completedLectures(ctx, db, r.ID)
		if err != nil {
			return nil, err
		}

		out = append(out, WithCourse{
			Enrollment: r.dbEnrollment.toCore(lectures),
			Course: CourseSummary{
				ID:           r.CourseID,
				Title:        r.Title,
				ThumbnailURL: r.ThumbnailURL,
			},
		})
	}
	return out, nil
}

func Stats(ctx context.Context, db sqlx.ExtContext, studentID string) (total, completed int, err error) {
	const q = `
	SELECT count(*) AS total,
		count(*) FILTER (WHERE completion_percentage = 100) AS completed
	FROM enrollments WHERE student_id = $1 AND status <> 'cancelled'`

	var s struct {
		Total     int `db:"total"`
		Completed int `db:"completed"`
	}
	if err := database.GetContext(ctx, db, &s, q, studentID); err != nil {
		return 0, 0, fmt.Errorf("counting enrollments of student[%s]: %w", studentID, err)
	}
	return s.Total, s.Completed, nil
}

// paidAmount returns the amount of a completed payment made by the student
// for the course.
func paidAmount(ctx context.Context, db sqlx.ExtContext, paymentID, studentID, courseID string) (float64, error) {
	const q = `
	SELECT amount FROM payments
	WHERE payment_id = $1 AND student_id = $2 AND course_id = $3 AND status = 'completed'`

	var amount float64
	if err := database.GetContext(ctx, db, &amount, q, paymentID, studentID, courseID); err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return 0, ErrPaymentRequired
		}
		return 0, fmt.Errorf("selecting payment[%s]: %w", paymentID, err)
	}
	return amount, nil
}
