package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/course-enrollment/api/background"
	"github.com/irsalhamdi/course-enrollment/api/middleware"
	"github.com/irsalhamdi/course-enrollment/api/web"
	"github.com/irsalhamdi/course-enrollment/api/weberr"
	"github.com/irsalhamdi/course-enrollment/core/auth"
	"github.com/irsalhamdi/course-enrollment/core/course"
	"github.com/irsalhamdi/course-enrollment/core/educator"
	"github.com/irsalhamdi/course-enrollment/core/enrollment"
	"github.com/irsalhamdi/course-enrollment/core/payment"
	"github.com/irsalhamdi/course-enrollment/core/rating"
	"github.com/irsalhamdi/course-enrollment/core/user"
	"github.com/irsalhamdi/course-enrollment/database"
	"github.com/irsalhamdi/course-enrollment/events"
	"github.com/irsalhamdi/course-enrollment/metrics"
	"github.com/irsalhamdi/course-enrollment/rate"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type APIConfig struct {
	CorsOrigin string
	Log        logrus.FieldLogger
	DB         *sqlx.DB
	Background *background.Background
	Verifier   auth.Verifier
	Gateways   payment.Gateways
	Events     events.Publisher
	Metrics    *metrics.Metrics
	Limiter    *rate.Limiter
}

// Services are the cores behind the routes, exposed so the process can
// drive them outside of HTTP.
type Services struct {
	Enrollment *enrollment.Core
	Payment    *payment.Core
	Rating     *rating.Core
}

func NewServices(cfg APIConfig) Services {
	enr := enrollment.NewCore(cfg.Log, cfg.DB, cfg.Background, cfg.Events, cfg.Metrics)
	return Services{
		Enrollment: enr,
		Payment:    payment.NewCore(cfg.Log, cfg.DB, cfg.Gateways, enr, cfg.Background, cfg.Events, cfg.Metrics),
		Rating:     rating.NewCore(cfg.DB, enr),
	}
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig, svc Services) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Logger(cfg.Log, cfg.Metrics))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())

	if cfg.CorsOrigin != "" {
		a.mw = append(a.mw, middleware.Cors(cfg.CorsOrigin))

		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		a.Handle(http.MethodOptions, "/{path:.*}", h)
	}

	authen := auth.Authenticate(cfg.Verifier)
	optional := auth.Optional(cfg.Verifier)
	educ := auth.Educator()
	sync := user.Sync(cfg.DB, cfg.Log)
	limit := middleware.RateLimit(cfg.Limiter)

	enr := svc.Enrollment
	a.Handle(http.MethodPost, "/enroll", enrollment.HandleEnroll(enr), authen, sync)
	a.Handle(http.MethodPost, "/cancel", enrollment.HandleCancel(enr), authen)
	a.Handle(http.MethodGet, "/status/{courseId}", enrollment.HandleStatus(enr), authen)
	a.Handle(http.MethodGet, "/progress/{courseId}", enrollment.HandleProgress(enr), authen)
	a.Handle(http.MethodPost, "/mark-complete", enrollment.HandleMarkComplete(enr), authen)

	a.Handle(http.MethodGet, "/student/courses", course.HandleList(cfg.DB))
	a.Handle(http.MethodGet, "/student/courses/{courseId}", course.HandleShow(cfg.DB, enr), optional)
	a.Handle(http.MethodGet, "/student/profile", user.HandleProfile(cfg.DB), authen)
	a.Handle(http.MethodGet, "/student/my-courses", enrollment.HandleMyCourses(enr), authen)
	a.Handle(http.MethodGet, "/student/dashboard", enrollment.HandleDashboard(enr), authen)

	pay := svc.Payment
	a.Handle(http.MethodPost, "/payment/create-order", payment.HandleCreateOrder(pay), authen, limit, sync)
	a.Handle(http.MethodPost, "/payment/paypal/{orderId}/capture", payment.HandlePaypalCapture(pay), authen, limit)
	a.Handle(http.MethodPost, "/payment/webhook", payment.HandleStripeWebhook(pay))
	a.Handle(http.MethodGet, "/payment/history", payment.HandleHistory(pay), authen)

	rt := svc.Rating
	a.Handle(http.MethodPost, "/ratings/add", rating.HandleAdd(rt), authen, sync)
	a.Handle(http.MethodPut, "/ratings/update", rating.HandleUpdate(rt), authen)
	a.Handle(http.MethodDelete, "/ratings/{courseId}", rating.HandleDelete(rt), authen)
	a.Handle(http.MethodGet, "/ratings/{courseId}", rating.HandleList(rt))

	a.Handle(http.MethodPost, "/educator/courses", course.HandleCreate(cfg.DB), authen, educ, sync)
	a.Handle(http.MethodGet, "/educator/courses", course.HandleListOwned(cfg.DB), authen, educ)
	a.Handle(http.MethodPut, "/educator/courses/{courseId}", course.HandleUpdate(cfg.DB), authen, educ)
	a.Handle(http.MethodDelete, "/educator/courses/{courseId}", course.HandleDelete(cfg.DB), authen, educ)
	a.Handle(http.MethodGet, "/educator/dashboard", educator.HandleDashboard(cfg.DB), authen, educ)
	a.Handle(http.MethodGet, "/educator/students", educator.HandleStudents(cfg.DB), authen, educ)

	a.Handle(http.MethodGet, "/health", handleHealth(cfg.DB))
	a.Router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return a.Router
}

func handleHealth(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := database.StatusCheck(ctx, db); err != nil {
			return weberr.NewError(err, "database not ready", http.StatusServiceUnavailable)
		}

		resp := struct {
			Status string `json:"status"`
		}{"ok"}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}
