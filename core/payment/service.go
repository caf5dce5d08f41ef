package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/irsalhamdi/course-enrollment/api/background"
	"github.com/irsalhamdi/course-enrollment/config"
	"github.com/irsalhamdi/course-enrollment/core/claims"
	"github.com/irsalhamdi/course-enrollment/core/course"
	"github.com/irsalhamdi/course-enrollment/core/enrollment"
	"github.com/irsalhamdi/course-enrollment/database"
	"github.com/irsalhamdi/course-enrollment/events"
	"github.com/irsalhamdi/course-enrollment/metrics"
	"github.com/irsalhamdi/course-enrollment/validate"
	"github.com/jmoiron/sqlx"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
)

const (
	metaCourseID  = "courseId"
	metaStudentID = "studentId"
	metaPaymentID = "paymentId"

	publishTimeout = 5 * time.Second
)

type Enroller interface {
	Enroll(ctx context.Context, en enrollment.EnrollmentNew) (enrollment.Enrollment, error)
	Status(ctx context.Context, studentID, courseID string) (enrollment.Enrollment, bool, error)
}

// Gateways holds the provider clients. A nil client disables its gateway.
type Gateways struct {
	Stripe       *stripecl.API
	StripeConfig config.Stripe
	Paypal       *paypal.Client
	PaypalConfig config.Paypal
}

type Core struct {
	log     logrus.FieldLogger
	db      *sqlx.DB
	gw      Gateways
	enroll  Enroller
	bg      *background.Background
	pub     events.Publisher
	metrics *metrics.Metrics
}

func NewCore(log logrus.FieldLogger, db *sqlx.DB, gw Gateways, enroll Enroller, bg *background.Background, pub events.Publisher, m *metrics.Metrics) *Core {
	return &Core{
		log:     log,
		db:      db,
		gw:      gw,
		enroll:  enroll,
		bg:      bg,
		pub:     pub,
		metrics: m,
	}
}

// CreateOrder freezes the course's final price, opens an order with the
// provider and records it as a pending payment. Nothing is written when the
// provider refuses.
func (c *Core) CreateOrder(ctx context.Context, p claims.Principal, on OrderNew) (Order, error) {
	gateway := on.Gateway
	if gateway == "" {
		gateway = Stripe
	}

	if (gateway == Stripe && c.gw.Stripe == nil) || (gateway == Paypal && c.gw.Paypal == nil) {
		return Order{}, fmt.Errorf("%s not configured: %w", gateway, ErrGatewayUnavailable)
	}

	crs, err := course.Fetch(ctx, c.db, on.CourseID)
	if err != nil {
		return Order{}, err
	}
	if !crs.Available() {
		return Order{}, course.ErrNotFound
	}

	if _, ok, err := c.enroll.Status(ctx, p.UserID, crs.ID); err != nil {
		return Order{}, err
	} else if ok {
		return Order{}, enrollment.ErrAlreadyEnrolled
	}

	now := time.Now().UTC()
	pay := Payment{
		ID:              validate.GenerateID(),
		StudentID:       p.UserID,
		CourseID:        crs.ID,
		Amount:          crs.FinalPrice(),
		Currency:        currency,
		Gateway:         gateway,
		Status:          Pending,
		TransactionDate: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var ord Order
	switch gateway {
	case Stripe:
		ord, err = c.stripeSession(ctx, crs, pay)
	case Paypal:
		ord, err = c.paypalOrder(ctx, crs, pay)
	}
	if err != nil {
		c.metrics.PaymentsTotal.WithLabelValues(string(gateway), "rejected").Inc()
		return Order{}, err
	}

	pay.OrderID = ord.SessionID
	if err := Create(ctx, c.db, pay); err != nil {
		return Order{}, err
	}

	c.metrics.PaymentsTotal.WithLabelValues(string(gateway), string(Pending)).Inc()
	c.log.WithFields(logrus.Fields{
		"payment_id": pay.ID,
		"order_id":   pay.OrderID,
		"gateway":    gateway,
		"amount":     pay.Amount,
	}).Info("order created")

	ord.Payment = pay
	return ord, nil
}

func (c *Core) stripeSession(ctx context.Context, crs course.Course, pay Payment) (Order, error) {
	ctx, cancel := context.WithTimeout(ctx, c.gw.StripeConfig.Timeout)
	defer cancel()

	cfg := c.gw.StripeConfig
	params := &stripe.CheckoutSessionParams{
		SuccessURL:        stripe.String(cfg.SuccessURL),
		CancelURL:         stripe.String(strings.ReplaceAll(cfg.CancelURL, "{course_id}", crs.ID)),
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(pay.ID),

		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),

			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(strings.ToLower(pay.Currency)),
				TaxBehavior: stripe.String("inclusive"),
				UnitAmount:  stripe.Int64(toCents(pay.Amount)),

				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(crs.Title),
				},
			},
		}},
	}
	params.Context = ctx
	params.SetIdempotencyKey(pay.ID)
	params.AddMetadata(metaCourseID, crs.ID)
	params.AddMetadata(metaStudentID, pay.StudentID)
	params.AddMetadata(metaPaymentID, pay.ID)

	s, err := c.gw.Stripe.CheckoutSessions.New(params)
	if err != nil {
		c.log.WithError(err).WithField("payment_id", pay.ID).Warn("creating stripe session")
		return Order{}, fmt.Errorf("creating stripe session: %w", errors.Join(ErrGatewayUnavailable, err))
	}

	return Order{SessionID: s.ID, SessionURL: s.URL}, nil
}

func (c *Core) paypalOrder(ctx context.Context, crs course.Course, pay Payment) (Order, error) {
	ctx, cancel := context.WithTimeout(ctx, c.gw.PaypalConfig.Timeout)
	defer cancel()

	cfg := c.gw.PaypalConfig
	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: pay.ID,
		CustomID:    pay.StudentID,
		Description: crs.Title,

		Items: []paypal.Item{{
			Quantity: "1",
			Name:     crs.Title,

			UnitAmount: &paypal.Money{
				Currency: pay.Currency,
				Value:    decimal(pay.Amount),
			},
		}},

		Amount: &paypal.PurchaseUnitAmount{
			Currency: pay.Currency,
			Value:    decimal(pay.Amount),

			Breakdown: &paypal.PurchaseUnitAmountBreakdown{ItemTotal: &paypal.Money{
				Currency: pay.Currency,
				Value:    decimal(pay.Amount),
			}},
		},
	}}

	app := &paypal.ApplicationContext{
		ReturnURL: cfg.ReturnURL,
		CancelURL: strings.ReplaceAll(cfg.CancelURL, "{course_id}", crs.ID),
	}

	o, err := c.gw.Paypal.CreateOrder(ctx, "CAPTURE", units, nil, app)
	if err != nil {
		c.log.WithError(err).WithField("payment_id", pay.ID).Warn("creating paypal order")
		return Order{}, fmt.Errorf("creating paypal order: %w", errors.Join(ErrGatewayUnavailable, err))
	}

	ord := Order{SessionID: o.ID}
	for _, l := range o.Links {
		if l.Rel == "approve" {
			ord.SessionURL = l.Href
		}
	}
	return ord, nil
}

// HandleStripeEvent verifies and applies a Stripe webhook delivery. A bad
// signature changes nothing.
func (c *Core) HandleStripeEvent(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, c.gw.StripeConfig.WebhookSecret)
	if err != nil {
		c.metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	typ := string(event.Type)
	outcome := "processed"
	defer func() {
		c.metrics.WebhookEventsTotal.WithLabelValues(typ, outcome).Inc()
	}()

	var s stripe.CheckoutSession
	switch typ {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.expired", "checkout.session.async_payment_failed":
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			outcome = "failed"
			return fmt.Errorf("decoding checkout session of event[%s]: %w", event.ID, err)
		}
	default:
		outcome = "ignored"
		return nil
	}

	if s.Mode != stripe.CheckoutSessionModePayment {
		outcome = "ignored"
		return nil
	}

	switch typ {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		if s.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			outcome = "ignored"
			return nil
		}
		_, err := c.Complete(ctx, completionFromSession(&s))
		if err != nil {
			outcome = "failed"
		}
		return err

	default:
		err := c.Fail(ctx, s.ID)
		if errors.Is(err, ErrNotFound) {
			outcome = "ignored"
			return nil
		}
		if err != nil {
			outcome = "failed"
		}
		return err
	}
}

func completionFromSession(s *stripe.CheckoutSession) Completion {
	cp := Completion{
		OrderID:        s.ID,
		ConfirmationID: s.ID,
		PaymentID:      s.Metadata[metaPaymentID],
		StudentID:      s.Metadata[metaStudentID],
		CourseID:       s.Metadata[metaCourseID],
		Amount:         fromCents(s.AmountTotal),
		Gateway:        Stripe,
	}
	if s.PaymentIntent != nil && s.PaymentIntent.ID != "" {
		cp.ConfirmationID = s.PaymentIntent.ID
	}
	return cp
}

// Complete settles the payment for cp.OrderID and enrolls its student.
// Replays leave the ledger untouched and still make sure the enrollment
// exists, so a failed enroll is retried by the provider's redelivery.
func (c *Core) Complete(ctx context.Context, cp Completion) (Payment, error) {
	pay, _, err := c.complete(ctx, cp)
	return pay, err
}

func (c *Core) complete(ctx context.Context, cp Completion) (Payment, bool, error) {
	var out Payment
	var settled bool

	err := database.Transaction(ctx, c.db, func(tx sqlx.ExtContext) error {
		now := time.Now().UTC()

		pay, err := lockByOrderID(ctx, tx, cp.OrderID)
		switch {
		case errors.Is(err, ErrNotFound):
			if cp.StudentID == "" || cp.CourseID == "" {
				return fmt.Errorf("order[%s]: %w", cp.OrderID, ErrMissingMetadata)
			}

			id := cp.PaymentID
			if validate.CheckID(id) != nil {
				id = validate.GenerateID()
			}
			confID := cp.ConfirmationID
			out = Payment{
				ID:              id,
				StudentID:       cp.StudentID,
				CourseID:        cp.CourseID,
				Amount:          cp.Amount,
				Currency:        currency,
				Gateway:         cp.Gateway,
				OrderID:         cp.OrderID,
				ConfirmationID:  &confID,
				Status:          Completed,
				TransactionDate: now,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := Create(ctx, tx, out); err != nil {
				return err
			}

			c.log.WithField("order_id", cp.OrderID).Warn("payment row missing, rebuilt from provider metadata")
			settled = true
			return nil

		case err != nil:
			return err
		}

		out = pay
		if pay.Status == Completed {
			return nil
		}

		up := StatusUp{
			ID:              pay.ID,
			Status:          Completed,
			ConfirmationID:  sql.NullString{String: cp.ConfirmationID, Valid: cp.ConfirmationID != ""},
			TransactionDate: now,
			UpdatedAt:       now,
		}
		if err := UpdateStatus(ctx, tx, up); err != nil {
			return err
		}

		out.Status = Completed
		out.TransactionDate = now
		out.UpdatedAt = now
		if up.ConfirmationID.Valid {
			out.ConfirmationID = &cp.ConfirmationID
		}
		settled = true
		return nil
	})
	if err != nil {
		return Payment{}, false, fmt.Errorf("completing order[%s]: %w", cp.OrderID, err)
	}

	if settled {
		c.metrics.PaymentsTotal.WithLabelValues(string(out.Gateway), string(Completed)).Inc()
		c.publish(events.PaymentCompleted, out)
		c.log.WithFields(logrus.Fields{
			"payment_id": out.ID,
			"order_id":   out.OrderID,
			"amount":     out.Amount,
		}).Info("payment completed")
	}

	return out, settled, c.fulfill(ctx, out)
}

func (c *Core) fulfill(ctx context.Context, pay Payment) error {
	id := pay.ID
	_, err := c.enroll.Enroll(ctx, enrollment.EnrollmentNew{
		StudentID: pay.StudentID,
		CourseID:  pay.CourseID,
		PaymentID: &id,
		Amount:    pay.Amount,
		Source:    enrollment.SourcePayment,
	})
	if err != nil && !errors.Is(err, enrollment.ErrAlreadyEnrolled) {
		return fmt.Errorf("enrolling student[%s] paid by payment[%s]: %w", pay.StudentID, pay.ID, err)
	}
	return nil
}

// Reenroll repairs a completed payment whose enrollment never landed.
func (c *Core) Reenroll(ctx context.Context, pay Payment) error {
	if pay.Status != Completed {
		return nil
	}
	return c.fulfill(ctx, pay)
}

// Fail marks a pending payment as failed. Completed payments are never
// downgraded.
func (c *Core) Fail(ctx context.Context, orderID string) error {
	_, err := c.fail(ctx, orderID)
	return err
}

func (c *Core) fail(ctx context.Context, orderID string) (bool, error) {
	var out Payment
	var changed bool

	err := database.Transaction(ctx, c.db, func(tx sqlx.ExtContext) error {
		pay, err := lockByOrderID(ctx, tx, orderID)
		if err != nil {
			return err
		}

		out = pay
		if pay.Status != Pending {
			return nil
		}

		now := time.Now().UTC()
		up := StatusUp{
			ID:              pay.ID,
			Status:          Failed,
			TransactionDate: now,
			UpdatedAt:       now,
		}
		if err := UpdateStatus(ctx, tx, up); err != nil {
			return err
		}

		out.Status = Failed
		out.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if changed {
		c.metrics.PaymentsTotal.WithLabelValues(string(out.Gateway), string(Failed)).Inc()
		c.publish(events.PaymentFailed, out)
		c.log.WithField("order_id", orderID).Info("payment failed")
	}
	return changed, nil
}

// CapturePaypal captures an approved PayPal order and settles it the same
// way a Stripe webhook does.
func (c *Core) CapturePaypal(ctx context.Context, p claims.Principal, orderID string) (Payment, error) {
	if c.gw.Paypal == nil {
		return Payment{}, fmt.Errorf("paypal not configured: %w", ErrGatewayUnavailable)
	}

	pay, err := FetchByOrderID(ctx, c.db, orderID)
	if err != nil {
		return Payment{}, err
	}
	if pay.StudentID != p.UserID {
		return Payment{}, ErrNotOwner
	}
	if pay.Status == Completed {
		return pay, c.fulfill(ctx, pay)
	}

	cctx, cancel := context.WithTimeout(ctx, c.gw.PaypalConfig.Timeout)
	defer cancel()

	resp, err := c.gw.Paypal.CaptureOrder(cctx, orderID, paypal.CaptureOrderRequest{})
	if err != nil {
		return Payment{}, fmt.Errorf("capturing paypal order[%s]: %w", orderID, errors.Join(ErrGatewayUnavailable, err))
	}

	if resp.Status != "COMPLETED" {
		c.log.WithFields(logrus.Fields{"order_id": orderID, "status": resp.Status}).Warn("paypal capture incomplete")
		return Payment{}, ErrCaptureIncomplete
	}

	return c.Complete(ctx, Completion{
		OrderID:        orderID,
		ConfirmationID: captureID(resp),
		PaymentID:      pay.ID,
		StudentID:      pay.StudentID,
		CourseID:       pay.CourseID,
		Amount:         pay.Amount,
		Gateway:        Paypal,
	})
}

func captureID(resp *paypal.CaptureOrderResponse) string {
	for _, u := range resp.PurchaseUnits {
		if u.Payments == nil {
			continue
		}
		for _, c := range u.Payments.Captures {
			if c.ID != "" {
				return c.ID
			}
		}
	}
	return resp.ID
}

// Resolve settles a stale pending payment from the provider's view of it.
// Payments the provider cannot confirm are failed once older than ttl. It
// reports whether the payment left pending.
func (c *Core) Resolve(ctx context.Context, pay Payment, ttl time.Duration) (bool, error) {
	if pay.Gateway == Stripe && c.gw.Stripe != nil {
		sctx, cancel := context.WithTimeout(ctx, c.gw.StripeConfig.Timeout)
		defer cancel()

		params := &stripe.CheckoutSessionParams{}
		params.Context = sctx

		s, err := c.gw.Stripe.CheckoutSessions.Get(pay.OrderID, params)
		if err != nil {
			c.log.WithError(err).WithField("order_id", pay.OrderID).Warn("reading stripe session")
		} else {
			switch {
			case s.Status == stripe.CheckoutSessionStatusComplete && s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
				cp := Completion{
					OrderID:        pay.OrderID,
					ConfirmationID: pay.OrderID,
					PaymentID:      pay.ID,
					StudentID:      pay.StudentID,
					CourseID:       pay.CourseID,
					Amount:         pay.Amount,
					Gateway:        Stripe,
				}
				if s.PaymentIntent != nil && s.PaymentIntent.ID != "" {
					cp.ConfirmationID = s.PaymentIntent.ID
				}
				_, settled, err := c.complete(ctx, cp)
				return settled, err

			case s.Status == stripe.CheckoutSessionStatusExpired:
				return c.fail(ctx, pay.OrderID)
			}
		}
	}

	if time.Since(pay.CreatedAt) > ttl {
		return c.fail(ctx, pay.OrderID)
	}
	return false, nil
}

func (c *Core) History(ctx context.Context, studentID string) ([]WithCourse, error) {
	return QueryByStudent(ctx, c.db, studentID)
}

func (c *Core) publish(subject string, pay Payment) {
	err := c.bg.Run(subject, func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := c.pub.Publish(ctx, subject, pay); err != nil {
			c.log.WithError(err).WithField("payment_id", pay.ID).Warn("publishing event")
		}
	})
	if err != nil {
		c.log.WithError(err).WithField("subject", subject).Warn("event dropped")
	}
}
