package middleware

import (
	"context"
	"net/http"

	"github.com/irsalhamdi/course-enrollment/api/web"
	"github.com/irsalhamdi/course-enrollment/api/weberr"
	"github.com/sirupsen/logrus"
)

// Errors renders a failed handler. Errors built with weberr get their own
// body and status; anything else is logged and hidden behind a 500.
func Errors(log logrus.FieldLogger) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)
			if err == nil {
				return nil
			}

			entry := log.WithField("req_id", ContextRequestID(ctx)).WithError(err)
			if f, ok := weberr.Fields(err); ok {
				entry = entry.WithFields(f)
			}

			body, status, ok := weberr.Response(err)
			if !ok {
				body = weberr.ErrorResponse{Message: http.StatusText(http.StatusInternalServerError)}
				status = http.StatusInternalServerError
			}

			switch {
			case status >= http.StatusInternalServerError:
				entry.Error("request failed")
			case status == http.StatusTooManyRequests:
				entry.Debug("request throttled")
			default:
				entry.Info("request rejected")
			}

			return web.Respond(ctx, w, body, status)
		}
		return h
	}
	return m
}
