package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/course-enrollment/api/background"
	"github.com/irsalhamdi/course-enrollment/core/claims"
	"github.com/irsalhamdi/course-enrollment/core/course"
	"github.com/irsalhamdi/course-enrollment/core/user"
	"github.com/irsalhamdi/course-enrollment/database"
	"github.com/irsalhamdi/course-enrollment/events"
	"github.com/irsalhamdi/course-enrollment/metrics"
	"github.com/irsalhamdi/course-enrollment/validate"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

// Core is the only writer of enrollment rows and the authority on whether a
// student may access a course.
type Core struct {
	log     logrus.FieldLogger
	db      *sqlx.DB
	bg      *background.Background
	pub     events.Publisher
	metrics *metrics.Metrics
}

func NewCore(log logrus.FieldLogger, db *sqlx.DB, bg *background.Background, pub events.Publisher, m *metrics.Metrics) *Core {
	return &Core{
		log:     log,
		db:      db,
		bg:      bg,
		pub:     pub,
		metrics: m,
	}
}

// Enroll opens the enrollment. The ledger row is written first and is the
// source of truth; the course and user mirrors follow on a best effort basis
// and are repaired by the reconciliation sweep. A duplicate returns the
// existing row with ErrAlreadyEnrolled.
func (c *Core) Enroll(ctx context.Context, en EnrollmentNew) (Enrollment, error) {
	if _, err := course.Fetch(ctx, c.db, en.CourseID); err != nil {
		return Enrollment{}, err
	}

	now := time.Now().UTC()
	e := Enrollment{
		ID:             validate.GenerateID(),
		StudentID:      en.StudentID,
		CourseID:       en.CourseID,
		EnrollmentDate: now,
		PaymentID:      en.PaymentID,
		Amount:         en.Amount,
		Status:         Active,
		Progress:       Progress{LecturesCompleted: []string{}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := Create(ctx, c.db, e); err != nil {
		if !errors.Is(err, database.ErrDBDuplicatedEntry) {
			return Enrollment{}, err
		}

		existing, ferr := FetchByStudentCourse(ctx, c.db, en.StudentID, en.CourseID)
		if ferr != nil {
			return Enrollment{}, fmt.Errorf("fetching existing enrollment: %w", ferr)
		}
		return existing, ErrAlreadyEnrolled
	}

	c.mirror(ctx, e, now)
	c.publish(events.EnrollmentCreated, e)

	source := en.Source
	if source == "" {
		source = SourceSelf
	}
	c.metrics.EnrollmentsTotal.WithLabelValues(source).Inc()

	c.log.WithFields(logrus.Fields{
		"enrollment_id": e.ID,
		"student_id":    e.StudentID,
		"course_id":     e.CourseID,
		"source":        source,
	}).Info("enrollment created")

	return e, nil
}

// SelfEnroll is the student facing path: free courses, the course's own
// educator, or a completed payment named by the caller.
func (c *Core) SelfEnroll(ctx context.Context, p claims.Principal, in SelfEnrollNew) (Enrollment, error) {
	if e, ok, err := c.Status(ctx, p.UserID, in.CourseID); err != nil {
		return Enrollment{}, err
	} else if ok {
		return e, ErrAlreadyEnrolled
	}

	crs, err := course.Fetch(ctx, c.db, in.CourseID)
	if err != nil {
		return Enrollment{}, err
	}
	if !crs.Available() {
		return Enrollment{}, course.ErrNotFound
	}

	en := EnrollmentNew{
		StudentID: p.UserID,
		CourseID:  crs.ID,
		Source:    SourceSelf,
	}

	switch {
	case in.PaymentID != nil:
		amount, err := paidAmount(ctx, c.db, *in.PaymentID, p.UserID, crs.ID)
		if err != nil {
			return Enrollment{}, err
		}
		en.PaymentID = in.PaymentID
		en.Amount = amount

	case crs.EducatorID == p.UserID, crs.FinalPrice() == 0:

	default:
		return Enrollment{}, ErrPaymentRequired
	}

	return c.Enroll(ctx, en)
}

func (c *Core) Status(ctx context.Context, studentID, courseID string) (Enrollment, bool, error) {
	e, err := FetchByStudentCourse(ctx, c.db, studentID, courseID)
	if err != nil {
		if errors.Is(err, ErrNotEnrolled) {
			return Enrollment{}, false, nil
		}
		return Enrollment{}, false, err
	}
	return e, true, nil
}

func (c *Core) Progress(ctx context.Context, studentID, courseID string) (Progress, error) {
	e, err := FetchByStudentCourse(ctx, c.db, studentID, courseID)
	if err != nil {
		return Progress{}, err
	}
	return e.Progress, nil
}

func (c *Core) CheckAccess(ctx context.Context, studentID, courseID string) (bool, error) {
	e, ok, err := c.Status(ctx, studentID, courseID)
	if err != nil || !ok {
		return false, err
	}
	return e.HasAccess(), nil
}

// MarkLectureComplete records the lecture and recomputes the percentage from
// the course's current content, all under a row lock on the enrollment so
// concurrent marks on different lectures cannot lose each other.
func (c *Core) MarkLectureComplete(ctx context.Context, studentID, courseID, lectureID string) (Progress, error) {
	var out Enrollment

	err := database.Transaction(ctx, c.db, func(tx sqlx.ExtContext) error {
		e, err := lockByStudentCourse(ctx, tx, studentID, courseID)
		if err != nil {
			return err
		}
		if e.Status == Cancelled {
			return ErrNotEnrolled
		}

		ok, err := course.HasLecture(ctx, tx, courseID, lectureID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrLectureNotFound
		}

		now := time.Now().UTC()
		if _, err := AddLecture(ctx, tx, e.ID, lectureID, now); err != nil {
			return err
		}

		completed, err := CountCompleted(ctx, tx, e.ID)
		if err != nil {
			return err
		}

		total, err := course.CountLectures(ctx, tx, courseID)
		if err != nil {
			return err
		}

		up := ProgressUp{
			ID:               e.ID,
			Percentage:       Percentage(completed, total),
			Status:           advance(e.Status, Percentage(completed, total)),
			LastAccessedDate: now,
			UpdatedAt:        now,
		}
		if err := UpdateProgress(ctx, tx, up); err != nil {
			return err
		}

		lectures, err := completedLectures(ctx, tx, e.ID)
		if err != nil {
			return err
		}

		e.Status = up.Status
		e.UpdatedAt = now
		e.Progress = Progress{
			LecturesCompleted:    lectures,
			CompletionPercentage: up.Percentage,
			LastAccessedDate:     &now,
		}
		out = e
		return nil
	})
	if err != nil {
		return Progress{}, err
	}

	c.metrics.ProgressUpdateTotal.Inc()
	return out.Progress, nil
}

// Cancel moves an enrollment to its terminal state and drops it from the
// mirrors. Cancelling twice is a no-op.
func (c *Core) Cancel(ctx context.Context, studentID, courseID string) (Enrollment, error) {
	var out Enrollment
	var changed bool

	err := database.Transaction(ctx, c.db, func(tx sqlx.ExtContext) error {
		e, err := lockByStudentCourse(ctx, tx, studentID, courseID)
		if err != nil {
			return err
		}

		out = e
		if e.Status == Cancelled {
			return nil
		}
		if !CanTransition(e.Status, Cancelled) {
			return ErrInvalidTransition
		}

		now := time.Now().UTC()
		if err := UpdateStatus(ctx, tx, e.ID, Cancelled, now); err != nil {
			return err
		}

		out.Status = Cancelled
		out.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		return Enrollment{}, err
	}

	if changed {
		c.unmirror(ctx, out)
		c.publish(events.EnrollmentCancelled, out)
	}
	return out, nil
}

func (c *Core) ListByStudent(ctx context.Context, studentID string) ([]WithCourse, error) {
	return QueryByStudent(ctx, c.db, studentID, 0)
}

func (c *Core) Dashboard(ctx context.Context, studentID string) (Dashboard, error) {
	total, completed, err := Stats(ctx, c.db, studentID)
	if err != nil {
		return Dashboard{}, err
	}

	recent, err := QueryByStudent(ctx, c.db, studentID, 5)
	if err != nil {
		return Dashboard{}, err
	}

	return Dashboard{
		TotalEnrollments:  total,
		CompletedCourses:  completed,
		InProgress:        total - completed,
		RecentEnrollments: recent,
	}, nil
}

func (c *Core) mirror(ctx context.Context, e Enrollment, now time.Time) {
	log := c.log.WithFields(logrus.Fields{"student_id": e.StudentID, "course_id": e.CourseID})

	if err := course.AddStudent(ctx, c.db, e.CourseID, e.StudentID, now); err != nil {
		log.WithError(err).Warn("course mirror out of date, left to the sweep")
	}
	if err := user.AddCourse(ctx, c.db, e.StudentID, e.CourseID, now); err != nil {
		log.WithError(err).Warn("user mirror out of date, left to the sweep")
	}
}

func (c *Core) unmirror(ctx context.Context, e Enrollment) {
	log := c.log.WithFields(logrus.Fields{"student_id": e.StudentID, "course_id": e.CourseID})

	if err := course.RemoveStudent(ctx, c.db, e.CourseID, e.StudentID); err != nil {
		log.WithError(err).Warn("course mirror out of date, left to the sweep")
	}
	if err := user.RemoveCourse(ctx, c.db, e.StudentID, e.CourseID); err != nil {
		log.WithError(err).Warn("user mirror out of date, left to the sweep")
	}
}

func (c *Core) publish(subject string, e Enrollment) {
	err := c.bg.Run(subject, func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := c.pub.Publish(ctx, subject, e); err != nil {
			c.log.WithError(err).WithField("enrollment_id", e.ID).Warn("publishing event")
		}
	})
	if err != nil {
		c.log.WithError(err).WithField("subject", subject).Warn("event dropped")
	}
}
