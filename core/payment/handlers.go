package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/irsalhamdi/course-enrollment/api/web"
	"github.com/irsalhamdi/course-enrollment/api/weberr"
	"github.com/irsalhamdi/course-enrollment/core/claims"
	"github.com/irsalhamdi/course-enrollment/core/course"
	"github.com/irsalhamdi/course-enrollment/core/enrollment"
	"github.com/irsalhamdi/course-enrollment/validate"
)

func requestErr(err error) error {
	switch {
	case errors.Is(err, course.ErrNotFound):
		return weberr.NewError(err, course.ErrNotFound.Error(), http.StatusNotFound)
	case errors.Is(err, ErrNotFound):
		return weberr.NewError(err, ErrNotFound.Error(), http.StatusNotFound)
	case errors.Is(err, enrollment.ErrAlreadyEnrolled):
		return weberr.Conflict(enrollment.ErrAlreadyEnrolled)
	case errors.Is(err, ErrNotOwner):
		return weberr.Forbidden(err)
	case errors.Is(err, ErrCaptureIncomplete):
		return weberr.NewError(err, ErrCaptureIncomplete.Error(), http.StatusPaymentRequired)
	case errors.Is(err, ErrGatewayUnavailable):
		return weberr.NewError(err, ErrGatewayUnavailable.Error(), http.StatusBadGateway)
	case errors.Is(err, ErrInvalidSignature):
		return weberr.NewError(err, ErrInvalidSignature.Error(), http.StatusBadRequest)
	}
	return err
}

func HandleCreateOrder(core *Core) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		var on OrderNew
		if err := web.Decode(w, r, &on); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(on); err != nil {
			return weberr.Invalid(err)
		}

		ord, err := core.CreateOrder(ctx, p, on)
		if err != nil {
			return weberr.Wrap(requestErr(err), weberr.WithFields(map[string]any{
				"student_id": p.UserID,
				"course_id":  on.CourseID,
				"gateway":    on.Gateway,
			}))
		}

		resp := struct {
			Success bool `json:"success"`
			Order
		}{true, ord}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

func HandlePaypalCapture(core *Core) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		orderID := web.Param(r, "orderId")

		pay, err := core.CapturePaypal(ctx, p, orderID)
		if err != nil {
			return weberr.Wrap(requestErr(err), weberr.WithFields(map[string]any{
				"order_id": orderID,
			}))
		}

		resp := struct {
			Success bool    `json:"success"`
			Message string  `json:"message"`
			Payment Payment `json:"payment"`
		}{true, "Payment completed", pay}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

// HandleStripeWebhook acknowledges every verified event. Failures other than
// a bad signature answer 500 so Stripe redelivers.
func HandleStripeWebhook(core *Core) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		b, err := web.RawBody(w, r)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot read the request body: %w", err))
		}

		sig := r.Header.Get("Stripe-Signature")
		if sig == "" {
			return weberr.NewError(ErrInvalidSignature, "received stripe event is not signed", http.StatusBadRequest)
		}

		if err := core.HandleStripeEvent(ctx, b, sig); err != nil {
			return requestErr(err)
		}

		resp := struct {
			Received bool `json:"received"`
		}{true}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

func HandleHistory(core *Core) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		p, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(err)
		}

		payments, err := core.History(ctx, p.UserID)
		if err != nil {
			return fmt.Errorf("listing payments of student[%s]: %w", p.UserID, err)
		}

		resp := struct {
			Success  bool         `json:"success"`
			Payments []WithCourse `json:"payments"`
		}{true, payments}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}
