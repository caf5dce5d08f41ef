// Package reconcile runs the periodic sweep that settles what request paths
// left behind: pending payments whose webhook never came, paid orders without
// an enrollment, and drifted enrollment mirrors.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/course-enrollment/core/course"
	"github.com/irsalhamdi/course-enrollment/core/payment"
	"github.com/irsalhamdi/course-enrollment/core/user"
	"github.com/irsalhamdi/course-enrollment/metrics"
	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const batchSize = 100

// Payments is the part of the payment service the sweep drives.
type Payments interface {
	Resolve(ctx context.Context, pay payment.Payment, ttl time.Duration) (bool, error)
	Reenroll(ctx context.Context, pay payment.Payment) error
}

type Report struct {
	Resolved        int
	Pending         int
	Reenrolled      int
	StudentsAdded   int64
	StudentsRemoved int64
	CoursesAdded    int64
	CoursesRemoved  int64
}

func (r Report) fields() logrus.Fields {
	return logrus.Fields{
		"resolved":         r.Resolved,
		"still_pending":    r.Pending,
		"reenrolled":       r.Reenrolled,
		"students_added":   r.StudentsAdded,
		"students_removed": r.StudentsRemoved,
		"courses_added":    r.CoursesAdded,
		"courses_removed":  r.CoursesRemoved,
	}
}

type Sweeper struct {
	log     logrus.FieldLogger
	db      *sqlx.DB
	pay     Payments
	ttl     time.Duration
	timeout time.Duration
	metrics *metrics.Metrics
}

func New(log logrus.FieldLogger, db *sqlx.DB, pay Payments, ttl time.Duration, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		log:     log,
		db:      db,
		pay:     pay,
		ttl:     ttl,
		timeout: 5 * time.Minute,
		metrics: m,
	}
}

// Run performs one sweep. Individual failures are logged and counted; the
// first one is returned after every step had its chance to run.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	var rep Report
	var errs []error

	// Sessions are re-read well before they are given up on.
	stale, err := payment.QueryStalePending(ctx, s.db, time.Now().UTC().Add(-s.ttl/4), batchSize)
	if err != nil {
		errs = append(errs, err)
	}
	for _, p := range stale {
		settled, err := s.pay.Resolve(ctx, p, s.ttl)
		switch {
		case err != nil:
			s.log.WithError(err).WithField("order_id", p.OrderID).Warn("resolving pending payment")
			errs = append(errs, err)
		case settled:
			rep.Resolved++
		default:
			rep.Pending++
		}
	}

	unenrolled, err := payment.QueryUnenrolled(ctx, s.db, batchSize)
	if err != nil {
		errs = append(errs, err)
	}
	for _, p := range unenrolled {
		if err := s.pay.Reenroll(ctx, p); err != nil {
			s.log.WithError(err).WithField("payment_id", p.ID).Warn("enrolling paid student")
			errs = append(errs, err)
			continue
		}
		rep.Reenrolled++
	}

	now := time.Now().UTC()
	if rep.StudentsAdded, rep.StudentsRemoved, err = course.RebuildStudents(ctx, s.db, now); err != nil {
		errs = append(errs, err)
	}
	if rep.CoursesAdded, rep.CoursesRemoved, err = user.RebuildCourses(ctx, s.db, now); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return rep, fmt.Errorf("sweep finished with %d errors: %w", len(errs), errors.Join(errs...))
	}
	return rep, nil
}

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	rep, err := s.Run(ctx)
	log := s.log.WithFields(rep.fields()).WithField("took", time.Since(start).String())

	if err != nil {
		s.metrics.SweepRunsTotal.WithLabelValues("error").Inc()
		log.WithError(err).Error("reconcile sweep")
		return
	}

	s.metrics.SweepRunsTotal.WithLabelValues("ok").Inc()
	log.Info("reconcile sweep")
}

// Start schedules the sweep. Runs never overlap. Stop the returned cron to
// end it.
func (s *Sweeper) Start(schedule string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(s.log)),
		cron.SkipIfStillRunning(cron.PrintfLogger(s.log)),
	))

	if _, err := c.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("scheduling reconcile sweep[%s]: %w", schedule, err)
	}

	c.Start()
	s.log.WithField("schedule", schedule).Info("reconcile sweep scheduled")
	return c, nil
}
