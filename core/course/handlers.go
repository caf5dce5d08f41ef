package course

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/irsalhamdi/course-enrollment/api/web"
	"github.com/irsalhamdi/course-enrollment/api/weberr"
	"github.com/irsalhamdi/course-enrollment/core/claims"
	"github.com/irsalhamdi/course-enrollment/validate"
	"github.com/jmoiron/sqlx"
)

const maxPageSize = 50

// AccessChecker tells whether a student may see a course's full content.
type AccessChecker interface {
	CheckAccess(ctx context.Context, studentID, courseID string) (bool, error)
}

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		page := web.QueryInt(r, "page", 1)
		limit := web.QueryInt(r, "limit", 10)
		if limit > maxPageSize {
			limit = maxPageSize
		}

		courses, total, err := QueryPublished(ctx, db, page, limit)
		if err != nil {
			return fmt.Errorf("listing courses: %w", err)
		}

		for i := range courses {
			courses[i] = courses[i].Redacted(false)
		}

		resp := struct {
			Success     bool     `json:"success"`
			Courses     []Course `json:"courses"`
			TotalPages  int      `json:"totalPages"`
			CurrentPage int      `json:"currentPage"`
		}{
			Success:     true,
			Courses:     courses,
			TotalPages:  int(math.Ceil(float64(total) / float64(limit))),
			CurrentPage: page,
		}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

func HandleShow(db *sqlx.DB, acc AccessChecker) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "courseId")
		if err := validate.CheckID(id); err != nil {
			return weberr.NotFound(ErrNotFound)
		}

		c, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NewError(err, err.Error(), http.StatusNotFound)
			}
			return fmt.Errorf("fetching course[%s]: %w", id, err)
		}

		var enrolled, owner bool
		if p, err := claims.Get(ctx); err == nil {
			owner = p.UserID == c.EducatorID
			if enrolled, err = acc.CheckAccess(ctx, p.UserID, c.ID); err != nil {
				return fmt.Errorf("checking access to course[%s]: %w", id, err)
			}
		}

		if !c.Available() && !enrolled && !owner {
			return weberr.NewError(ErrNotFound, ErrNotFound.Error(), http.StatusNotFound)
		}

		resp := struct {
			Success    bool   `json:"success"`
			Course     Course `json:"course"`
			IsEnrolled bool   `json:"isEnrolled"`
		}{
			Success:    true,
			Course:     c.Redacted(enrolled || owner),
			IsEnrolled: enrolled,
		}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

func HandleCreate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		var cn CourseNew
		if err := web.Decode(w, r, &cn); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(cn); err != nil {
			return weberr.Invalid(err)
		}

		c, err := New(ctx, db, p, cn)
		if err != nil {
			if errors.Is(err, ErrDuplicateChapter) || errors.Is(err, ErrDuplicateLecture) {
				return weberr.Invalid(err)
			}
			return err
		}

		resp := struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
			Course  Course `json:"course"`
		}{true, "Course added", c}
		return web.Respond(ctx, w, resp, http.StatusCreated)
	}
}

func HandleListOwned(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		courses, err := QueryByEducator(ctx, db, p.UserID)
		if err != nil {
			return fmt.Errorf("listing courses of educator[%s]: %w", p.UserID, err)
		}

		resp := struct {
			Success bool     `json:"success"`
			Courses []Course `json:"courses"`
		}{true, courses}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

func HandleDelete(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		id := web.Param(r, "courseId")
		if err := validate.CheckID(id); err != nil {
			return weberr.NotFound(ErrNotFound)
		}

		switch err := Delete(ctx, db, p, id); {
		case errors.Is(err, ErrNotFound):
			return weberr.NewError(err, err.Error(), http.StatusNotFound)
		case errors.Is(err, ErrNotOwner):
			return weberr.NewError(err, err.Error(), http.StatusForbidden)
		case err != nil:
			return fmt.Errorf("deleting course[%s]: %w", id, err)
		}

		resp := struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}{true, "Course deleted"}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

func HandleUpdate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		id := web.Param(r, "courseId")
		if err := validate.CheckID(id); err != nil {
			return weberr.NotFound(ErrNotFound)
		}

		var cu CourseUp
		if err := web.Decode(w, r, &cu); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}
		if err := validate.Check(cu); err != nil {
			return weberr.Invalid(err)
		}

		c, err := Edit(ctx, db, p, id, cu)
		switch {
		case errors.Is(err, ErrNotFound):
			return weberr.NewError(err, ErrNotFound.Error(), http.StatusNotFound)
		case errors.Is(err, ErrNotOwner):
			return weberr.NewError(err, ErrNotOwner.Error(), http.StatusForbidden)
		case errors.Is(err, ErrDuplicateChapter):
			return weberr.NewError(err, ErrDuplicateChapter.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrDuplicateLecture):
			return weberr.NewError(err, ErrDuplicateLecture.Error(), http.StatusBadRequest)
		case err != nil:
			return err
		}

		resp := struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
			Course  Course `json:"course"`
		}{true, "Course updated", c}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}
