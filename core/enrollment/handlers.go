package enrollment

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

// requestErr maps ledger errors onto HTTP responses. Anything it does not
// recognise is returned as is and becomes a 500.
func requestErr(err error) error {
	switch {
	case errors.Is(err, course.ErrNotFound), errors.Is(err, ErrLectureNotFound):
		return weberr.NewError(err, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrAlreadyEnrolled):
		return weberr.Conflict(err)
	case errors.Is(err, ErrNotEnrolled):
		return weberr.NewError(err, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrPaymentRequired):
		return weberr.NewError(err, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, ErrInvalidTransition):
		return weberr.Conflict(err)
	}
	return err
}

func HandleEnroll(core *Core) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		var in SelfEnrollNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Invalid(err)
		}

		e, err := core.SelfEnroll(ctx, p, in)
		if err != nil {
			return weberr.Wrap(requestErr(err), weberr.WithFields(map[string]any{
				"student_id": p.UserID,
				"course_id":  in.CourseID,
			}))
		}

		resp := struct {
			Success    bool       `json:"success"`
			Message    string     `json:"message"`
			Enrollment Enrollment `json:"enrollment"`
		}{true, "Enrolled successfully", e}
		return web.Respond(ctx, w, resp, http.StatusCreated)
	}
}

func HandleCancel(core *Core) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		var in CourseRef
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Invalid(err)
		}

		e, err := core.Cancel(ctx, p.UserID, in.CourseID)
		if err != nil {
			return requestErr(err)
		}

		resp := struct {
			Success    bool       `json:"success"`
			Message    string     `json:"message"`
			Enrollment Enrollment `json:"enrollment"`
		}{true, "Enrollment cancelled", e}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

func HandleStatus(core *Core) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		courseID := web.Param(r, "courseId")
		if err := validate.CheckID(courseID); err != nil {
			return weberr.NewError(course.ErrNotFound, course.ErrNotFound.Error(), http.StatusNotFound)
		}

		e, ok, err := core.Status(ctx, p.UserID, courseID)
		if err != nil {
			return fmt.Errorf("checking enrollment of student[%s] in course[%s]: %w", p.UserID, courseID, err)
		}

		// isEnrolled reports that a record exists; cancelled ones included.
		resp := struct {
			Success    bool        `json:"success"`
			IsEnrolled bool        `json:"isEnrolled"`
			Enrollment *Enrollment `json:"enrollment"`
		}{Success: true, IsEnrolled: ok}
		if ok {
			resp.Enrollment = &e
		}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

func HandleProgress(core *Core) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		courseID := web.Param(r, "courseId")
		if err := validate.CheckID(courseID); err != nil {
			return weberr.NewError(course.ErrNotFound, course.ErrNotFound.Error(), http.StatusNotFound)
		}

		prog, err := core.Progress(ctx, p.UserID, courseID)
		if err != nil {
			return requestErr(err)
		}

		resp := struct {
			Success  bool     `json:"success"`
			Progress Progress `json:"progress"`
		}{true, prog}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

func HandleMarkComplete(core *Core) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		var in LectureMark
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Invalid(err)
		}

		prog, err := core.MarkLectureComplete(ctx, p.UserID, in.CourseID, in.LectureID)
		if err != nil {
			return weberr.Wrap(requestErr(err), weberr.WithFields(map[string]any{
				"student_id": p.UserID,
				"course_id":  in.CourseID,
				"lecture_id": in.LectureID,
			}))
		}

		resp := struct {
			Success  bool     `json:"success"`
			Message  string   `json:"message"`
			Progress Progress `json:"progress"`
		}{true, "Lecture marked as complete", prog}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

func HandleMyCourses(core *Core) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		list, err := core.ListByStudent(ctx, p.UserID)
		if err != nil {
			return fmt.Errorf("listing enrollments of student[%s]: %w", p.UserID, err)
		}

		resp := struct {
			Success     bool         `json:"success"`
			Enrollments []WithCourse `json:"enrollments"`
		}{true, list}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

func HandleDashboard(core *Core) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		d, err := core.Dashboard(ctx, p.UserID)
		if err != nil {
			return fmt.Errorf("building dashboard of student[%s]: %w", p.UserID, err)
		}

		resp := struct {
			Success   bool      `json:"success"`
			Dashboard Dashboard `json:"dashboard"`
		}{true, d}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}
