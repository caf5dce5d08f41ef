// Package educator serves the teaching side: earnings and who is enrolled
// in the courses an educator owns.
package educator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/course-enrollment/api/web"
	"github.com/irsalhamdi/course-enrollment/api/weberr"
	"github.com/irsalhamdi/course-enrollment/core/claims"
	"github.com/irsalhamdi/course-enrollment/core/payment"
	"github.com/irsalhamdi/course-enrollment/core/user"
	"github.com/irsalhamdi/course-enrollment/database"
	"github.com/jmoiron/sqlx"
)

type Student struct {
	ID             string    `json:"id" db:"student_id"`
	Name           string    `json:"name" db:"-"`
	CourseID       string    `json:"courseId" db:"course_id"`
	CourseTitle    string    `json:"courseTitle" db:"title"`
	Status         string    `json:"status" db:"status"`
	Completion     int       `json:"completionPercentage" db:"completion_percentage"`
	EnrollmentDate time.Time `json:"enrollmentDate" db:"enrollment_date"`
}

type Dashboard struct {
	TotalCourses     int       `json:"totalCourses"`
	TotalEnrollments int       `json:"totalEnrollments"`
	TotalEarnings    float64   `json:"totalEarnings"`
	RecentStudents   []Student `json:"enrolledStudentsData"`
}

// QueryStudents lists live enrollments in the educator's courses, newest
// first, with student names filled in. limit <= 0 means no limit.
func QueryStudents(ctx context.Context, db sqlx.ExtContext, educatorID string, limit int) ([]Student, error) {
	q := `
	SELECT e.student_id, e.course_id, c.title, e.status, e.completion_percentage, e.enrollment_date
	FROM enrollments e
	JOIN courses c ON c.course_id = e.course_id
	WHERE c.educator_id = $1 AND e.status <> 'cancelled'
	ORDER BY e.enrollment_date DESC`

	args := []any{educatorID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	students := []Student{}
	if err := database.SelectContext(ctx, db, &students, q, args...); err != nil {
		return nil, fmt.Errorf("selecting students of educator[%s]: %w", educatorID, err)
	}

	ids := make([]string, 0, len(students))
	for _, s := range students {
		ids = append(ids, s.ID)
	}

	names, err := user.Names(ctx, db, ids)
	if err != nil {
		return nil, err
	}

	for i := range students {
		students[i].Name = names[students[i].ID]
		students[i].EnrollmentDate = students[i].EnrollmentDate.UTC()
	}
	return students, nil
}

func counts(ctx context.Context, db sqlx.ExtContext, educatorID string) (courses, enrollments int, err error) {
	const q = `
	SELECT
		(SELECT count(*) FROM courses WHERE educator_id = $1 AND deleted_at IS NULL) AS courses,
		(SELECT count(*) FROM enrollments e JOIN courses c ON c.course_id = e.course_id
			WHERE c.educator_id = $1 AND e.status <> 'cancelled') AS enrollments`

	var row struct {
		Courses     int `db:"courses"`
		Enrollments int `db:"enrollments"`
	}
	if err := database.GetContext(ctx, db, &row, q, educatorID); err != nil {
		return 0, 0, fmt.Errorf("counting courses of educator[%s]: %w", educatorID, err)
	}
	return row.Courses, row.Enrollments, nil
}

func BuildDashboard(ctx context.Context, db sqlx.ExtContext, educatorID string) (Dashboard, error) {
	courses, enrollments, err := counts(ctx, db, educatorID)
	if err != nil {
		return Dashboard{}, err
	}

	earnings, err := payment.Earnings(ctx, db, educatorID)
	if err != nil {
		return Dashboard{}, err
	}

	recent, err := QueryStudents(ctx, db, educatorID, 10)
	if err != nil {
		return Dashboard{}, err
	}

	return Dashboard{
		TotalCourses:     courses,
		TotalEnrollments: enrollments,
		TotalEarnings:    earnings,
		RecentStudents:   recent,
	}, nil
}

func HandleDashboard(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		d, err := BuildDashboard(ctx, db, p.UserID)
		if err != nil {
			return fmt.Errorf("building dashboard of educator[%s]: %w", p.UserID, err)
		}

		resp := struct {
			Success       bool      `json:"success"`
			DashboardData Dashboard `json:"dashboardData"`
		}{true, d}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

func HandleStudents(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		students, err := QueryStudents(ctx, db, p.UserID, 0)
		if err != nil {
			return fmt.Errorf("listing students of educator[%s]: %w", p.UserID, err)
		}

		resp := struct {
			Success              bool      `json:"success"`
			EnrolledStudentsData []Student `json:"enrolledStudents"`
		}{true, students}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}
