package rating

import (
	"context"
	"fmt"

	"github.com/irsalhamdi/course-enrollment/database"
	"github.com/jmoiron/sqlx"
)

func Create(ctx context.Context, db sqlx.ExtContext, r Rating) error {
	const q = `
	INSERT INTO course_ratings
		(course_id, user_id, rating, review, created_at, updated_at)
	VALUES
		(:course_id, :user_id, :rating, :review, :created_at, :updated_at)`

	if err := database.NamedExecContext(ctx, db, q, r); err != nil {
		return fmt.Errorf("inserting rating of user[%s] on course[%s]: %w", r.UserID, r.CourseID, err)
	}
	return nil
}

// Update replaces the rating and review. It reports whether a row existed.
func Update(ctx context.Context, db sqlx.ExtContext, r Rating) (bool, error) {
	const q = `
	UPDATE course_ratings SET
		rating = :rating,
		review = :review,
		updated_at = :updated_at
	WHERE course_id = :course_id AND user_id = :user_id`

	n, err := database.NamedExecAffected(ctx, db, q, r)
	if err != nil {
		return false, fmt.Errorf("updating rating of user[%s] on course[%s]: %w", r.UserID, r.CourseID, err)
	}
	return n > 0, nil
}

func Delete(ctx context.Context, db sqlx.ExtContext, courseID, userID string) error {
	const q = `DELETE FROM course_ratings WHERE course_id = $1 AND user_id = $2`

	if _, err := db.ExecContext(ctx, q, courseID, userID); err != nil {
		return fmt.Errorf("deleting rating of user[%s] on course[%s]: %w", userID, courseID, err)
	}
	return nil
}

func QueryByCourse(ctx context.Context, db sqlx.ExtContext, courseID string) ([]Rating, error) {
	const q = `
	SELECT course_id, user_id, rating, review, created_at, updated_at
	FROM course_ratings
	WHERE course_id = $1
	ORDER BY created_at`

	rs := []Rating{}
	if err := database.SelectContext(ctx, db, &rs, q, courseID); err != nil {
		return nil, fmt.Errorf("selecting ratings of course[%s]: %w", courseID, err)
	}
	return rs, nil
}
