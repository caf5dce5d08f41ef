package rating

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/irsalhamdi/course-enrollment/api/web"
	"github.com/irsalhamdi/course-enrollment/api/weberr"
	"github.com/irsalhamdi/course-enrollment/core/claims"
	"github.com/irsalhamdi/course-enrollment/core/course"
	"github.com/irsalhamdi/course-enrollment/validate"
)

func requestErr(err error) error {
	switch {
	case errors.Is(err, ErrInvalidRating):
		return weberr.Invalid(err)
	case errors.Is(err, ErrNotEnrolled):
		return weberr.NewError(err, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrAlreadyRated):
		return weberr.Conflict(err)
	case errors.Is(err, ErrNotFound), errors.Is(err, course.ErrNotFound):
		return weberr.NewError(err, err.Error(), http.StatusNotFound)
	}
	return err
}

func decodeRating(w http.ResponseWriter, r *http.Request) (RatingNew, error) {
	var rn RatingNew
	if err := web.Decode(w, r, &rn); err != nil {
		return RatingNew{}, weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
	}

	if err := validate.Check(rn); err != nil {
		return RatingNew{}, weberr.Invalid(err)
	}
	return rn, nil
}

func HandleAdd(core *Core) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		rn, err := decodeRating(w, r)
		if err != nil {
			return err
		}

		if _, err := core.Add(ctx, p, rn); err != nil {
			return requestErr(err)
		}

		resp := struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}{true, "Rating added successfully"}
		return web.Respond(ctx, w, resp, http.StatusCreated)
	}
}

func HandleUpdate(core *Core) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		rn, err := decodeRating(w, r)
		if err != nil {
			return err
		}

		if _, err := core.Update(ctx, p, rn); err != nil {
			return requestErr(err)
		}

		resp := struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}{true, "Rating updated successfully"}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

func HandleDelete(core *Core) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		courseID := web.Param(r, "courseId")
		if err := validate.CheckID(courseID); err != nil {
			return weberr.NewError(course.ErrNotFound, course.ErrNotFound.Error(), http.StatusNotFound)
		}

		if err := core.Delete(ctx, p, courseID); err != nil {
			return fmt.Errorf("deleting rating on course[%s]: %w", courseID, err)
		}

		resp := struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}{true, "Rating deleted successfully"}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

func HandleList(core *Core) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		courseID := web.Param(r, "courseId")
		if err := validate.CheckID(courseID); err != nil {
			return weberr.NewError(course.ErrNotFound, course.ErrNotFound.Error(), http.StatusNotFound)
		}

		rs, sum, err := core.Query(ctx, courseID)
		if err != nil {
			return requestErr(err)
		}

		resp := struct {
			Success bool     `json:"success"`
			Ratings []Rating `json:"ratings"`
			Summary
		}{true, rs, sum}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}
