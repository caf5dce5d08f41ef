package rating

import (
	"context"
	"errors"
	"time"

	"github.com/irsalhamdi/course-enrollment/core/claims"
	"github.com/irsalhamdi/course-enrollment/core/course"
	"github.com/irsalhamdi/course-enrollment/database"
	"github.com/jmoiron/sqlx"
)

type AccessChecker interface {
	CheckAccess(ctx context.Context, studentID, courseID string) (bool, error)
}

type Core struct {
	db  *sqlx.DB
	acc AccessChecker
}

func NewCore(db *sqlx.DB, acc AccessChecker) *Core {
	return &Core{db: db, acc: acc}
}

func (c *Core) Add(ctx context.Context, p claims.Principal, rn RatingNew) (Rating, error) {
	if !valid(rn.Rating) {
		return Rating{}, ErrInvalidRating
	}

	ok, err := c.acc.CheckAccess(ctx, p.UserID, rn.CourseID)
	if err != nil {
		return Rating{}, err
	}
	if !ok {
		return Rating{}, ErrNotEnrolled
	}

	crs, err := course.Fetch(ctx, c.db, rn.CourseID)
	if err != nil {
		return Rating{}, err
	}
	if crs.DeletedAt != nil {
		return Rating{}, course.ErrNotFound
	}

	now := time.Now().UTC()
	r := Rating{
		CourseID:  crs.ID,
		UserID:    p.UserID,
		Rating:    rn.Rating,
		Review:    rn.Review,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := Create(ctx, c.db, r); err != nil {
		if errors.Is(err, database.ErrDBDuplicatedEntry) {
			return Rating{}, ErrAlreadyRated
		}
		return Rating{}, err
	}
	return r, nil
}

func (c *Core) Update(ctx context.Context, p claims.Principal, rn RatingNew) (Rating, error) {
	if !valid(rn.Rating) {
		return Rating{}, ErrInvalidRating
	}

	r := Rating{
		CourseID:  rn.CourseID,
		UserID:    p.UserID,
		Rating:    rn.Rating,
		Review:    rn.Review,
		UpdatedAt: time.Now().UTC(),
	}

	ok, err := Update(ctx, c.db, r)
	if err != nil {
		return Rating{}, err
	}
	if !ok {
		return Rating{}, ErrNotFound
	}
	return r, nil
}

func (c *Core) Delete(ctx context.Context, p claims.Principal, courseID string) error {
	return Delete(ctx, c.db, courseID, p.UserID)
}

func (c *Core) Query(ctx context.Context, courseID string) ([]Rating, Summary, error) {
	if _, err := course.Fetch(ctx, c.db, courseID); err != nil {
		return nil, Summary{}, err
	}

	rs, err := QueryByCourse(ctx, c.db, courseID)
	if err != nil {
		return nil, Summary{}, err
	}
	return rs, Summarize(rs), nil
}
