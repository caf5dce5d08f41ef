package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/course-enrollment/api/web"
	"github.com/irsalhamdi/course-enrollment/metrics"
	"github.com/sirupsen/logrus"
	"github.com/zenazn/goji/web/mutil"
)

// Logger writes one line per request once it is served and records it in
// the HTTP metrics under its route template.
func Logger(log logrus.FieldLogger, m *metrics.Metrics) web.Middleware {
	mw := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			start := time.Now()
			lw := mutil.WrapWriter(w)

			err := handler(ctx, lw, r)

			status := lw.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routeTemplate(r)
			took := time.Since(start)

			entry := log.WithFields(logrus.Fields{
				"req_id": ContextRequestID(ctx),
				"method": r.Method,
				"route":  route,
				"path":   r.URL.Path,
				"remote": r.RemoteAddr,
				"status": status,
				"bytes":  lw.BytesWritten(),
				"took":   took.String(),
			})
			if status >= http.StatusInternalServerError {
				entry.Warn("request served")
			} else {
				entry.Info("request served")
			}

			if m != nil {
				m.ObserveRequest(r.Method, route, strconv.Itoa(status), took)
			}
			return err
		}
		return h
	}
	return mw
}

// routeTemplate keeps path ids out of the metric labels.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
