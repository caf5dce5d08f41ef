package user

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/course-enrollment/api/web"
	"github.com/irsalhamdi/course-enrollment/api/weberr"
	"github.com/irsalhamdi/course-enrollment/core/claims"
	"github.com/irsalhamdi/course-enrollment/database"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

var ErrNotFound = errors.New("user not found")

type User struct {
	ID              string    `json:"id" db:"user_id"`
	Name            string    `json:"name" db:"name"`
	Email           string    `json:"email" db:"email"`
	ImageURL        string    `json:"imageUrl" db:"image_url"`
	Role            string    `json:"role" db:"role"`
	EnrolledCourses []string  `json:"enrolledCourses" db:"-"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}

// Upsert records the profile carried by the identity token. Empty token
// fields never overwrite stored values.
func Upsert(ctx context.Context, db sqlx.ExtContext, p claims.Principal, now time.Time) error {
	const q = `
	INSERT INTO users (user_id, name, email, image_url, role, created_at, updated_at)
	VALUES (:user_id, :name, :email, :image_url, :role, :created_at, :updated_at)
	ON CONFLICT (user_id) DO UPDATE SET
		name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
		email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
		image_url = COALESCE(NULLIF(EXCLUDED.image_url, ''), users.image_url),
		role = EXCLUDED.role,
		updated_at = EXCLUDED.updated_at`

	u := User{
		ID:        p.UserID,
		Name:      p.Name,
		Email:     p.Email,
		ImageURL:  p.ImageURL,
		Role:      p.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := database.NamedExecContext(ctx, db, q, u); err != nil {
		return fmt.Errorf("upserting user[%s]: %w", p.UserID, err)
	}
	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, id string) (User, error) {
	const q = `
	SELECT user_id, name, email, image_url, role, created_at, updated_at
	FROM users WHERE user_id = $1`

	var u User
	if err := database.GetContext(ctx, db, &u, q, id); err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("selecting user[%s]: %w", id, err)
	}

	const qc = `SELECT course_id FROM user_courses WHERE user_id = $1 ORDER BY created_at`

	u.EnrolledCourses = []string{}
	if err := database.SelectContext(ctx, db, &u.EnrolledCourses, qc, id); err != nil {
		return User{}, fmt.Errorf("selecting courses of user[%s]: %w", id, err)
	}

	return u, nil
}

// Names maps user ids to display names; unknown ids are left out.
func Names(ctx context.Context, db sqlx.ExtContext, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	q, args, err := sqlx.In(`SELECT user_id, name FROM users WHERE user_id IN (?)`, ids)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		ID   string `db:"user_id"`
		Name string `db:"name"`
	}
	if err := database.SelectContext(ctx, db, &rows, db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("selecting user names: %w", err)
	}

	for _, r := range rows {
		names[r.ID] = r.Name
	}
	return names, nil
}

func AddCourse(ctx context.Context, db sqlx.ExtContext, userID, courseID string, now time.Time) error {
	const q = `
	INSERT INTO user_courses (user_id, course_id, created_at) VALUES ($1, $2, $3)
	ON CONFLICT DO NOTHING`

	if _, err := db.ExecContext(ctx, q, userID, courseID, now); err != nil {
		return fmt.Errorf("adding course[%s] to user[%s]: %w", courseID, userID, err)
	}
	return nil
}

func RemoveCourse(ctx context.Context, db sqlx.ExtContext, userID, courseID string) error {
	const q = `DELETE FROM user_courses WHERE user_id = $1 AND course_id = $2`

	if _, err := db.ExecContext(ctx, q, userID, courseID); err != nil {
		return fmt.Errorf("removing course[%s] from user[%s]: %w", courseID, userID, err)
	}
	return nil
}

// RebuildCourses re-derives user_courses from the enrollment ledger.
func RebuildCourses(ctx context.Context, db sqlx.ExtContext, now time.Time) (added, removed int64, err error) {
	const qa = `
	INSERT INTO user_courses (user_id, course_id, created_at)
	SELECT student_id, course_id, $1 FROM enrollments WHERE status <> 'cancelled'
	ON CONFLICT DO NOTHING`

	res, err := db.ExecContext(ctx, qa, now)
	if err != nil {
		return 0, 0, fmt.Errorf("restoring user courses: %w", err)
	}
	added, _ = res.RowsAffected()

	const qr = `
	DELETE FROM user_courses uc
	WHERE NOT EXISTS (
		SELECT 1 FROM enrollments e
		WHERE e.student_id = uc.user_id AND e.course_id = uc.course_id AND e.status <> 'cancelled'
	)`

	res, err = db.ExecContext(ctx, qr)
	if err != nil {
		return added, 0, fmt.Errorf("pruning user courses: %w", err)
	}
	removed, _ = res.RowsAffected()

	return added, removed, nil
}

// HandleProfile returns the caller's profile, creating it from the token on
// first access.
func HandleProfile(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		if err := Upsert(ctx, db, p, time.Now().UTC()); err != nil {
			return err
		}

		u, err := Fetch(ctx, db, p.UserID)
		if err != nil {
			return fmt.Errorf("fetching profile: %w", err)
		}

		resp := struct {
			Success bool `json:"success"`
			User    User `json:"user"`
		}{true, u}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

// Sync records the caller's profile ahead of requests that make the user
// show up to others. A failed write is logged and the request carries on.
func Sync(db *sqlx.DB, log logrus.FieldLogger) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if p, err := claims.Get(ctx); err == nil {
				if err := Upsert(ctx, db, p, time.Now().UTC()); err != nil {
					log.WithError(err).WithField("user_id", p.UserID).Warn("syncing user profile")
				}
			}
			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
