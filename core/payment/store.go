package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/course-enrollment/database"
	"github.com/jmoiron/sqlx"
)

type dbPayment struct {
	ID              string         `db:"payment_id"`
	StudentID       string         `db:"student_id"`
	CourseID        string         `db:"course_id"`
	Amount          float64        `db:"amount"`
	Currency        string         `db:"currency"`
	Gateway         Gateway        `db:"gateway"`
	OrderID         string         `db:"order_id"`
	ConfirmationID  sql.NullString `db:"confirmation_id"`
	Status          Status         `db:"status"`
	TransactionDate time.Time      `db:"transaction_date"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func toDB(p Payment) dbPayment {
	d := dbPayment{
		ID:              p.ID,
		StudentID:       p.StudentID,
		CourseID:        p.CourseID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Gateway:         p.Gateway,
		OrderID:         p.OrderID,
		Status:          p.Status,
		TransactionDate: p.TransactionDate,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
	if p.ConfirmationID != nil {
		d.ConfirmationID = sql.NullString{String: *p.ConfirmationID, Valid: true}
	}
	return d
}

func (d dbPayment) toCore() Payment {
	p := Payment{
		ID:              d.ID,
		StudentID:       d.StudentID,
		CourseID:        d.CourseID,
		Amount:          d.Amount,
		Currency:        d.Currency,
		Gateway:         d.Gateway,
		OrderID:         d.OrderID,
		Status:          d.Status,
		TransactionDate: d.TransactionDate.UTC(),
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
	if d.ConfirmationID.Valid {
		id := d.ConfirmationID.String
		p.ConfirmationID = &id
	}
	return p
}

const columns = `payment_id, student_id, course_id, amount, currency, gateway, order_id, confirmation_id,
	status, transaction_date, created_at, updated_at`

func Create(ctx context.Context, db sqlx.ExtContext, p Payment) error {
	const q = `
	INSERT INTO payments
		(payment_id, student_id, course_id, amount, currency, gateway, order_id, confirmation_id,
		status, transaction_date, created_at, updated_at)
	VALUES
		(:payment_id, :student_id, :course_id, :amount, :currency, :gateway, :order_id, :confirmation_id,
		:status, :transaction_date, :created_at, :updated_at)`

	if err := database.NamedExecContext(ctx, db, q, toDB(p)); err != nil {
		return fmt.Errorf("inserting payment for order[%s]: %w", p.OrderID, err)
	}
	return nil
}

func FetchByOrderID(ctx context.Context, db sqlx.ExtContext, orderID string) (Payment, error) {
	return fetch(ctx, db, `SELECT `+columns+` FROM payments WHERE order_id = $1`, orderID)
}

func lockByOrderID(ctx context.Context, tx sqlx.ExtContext, orderID string) (Payment, error) {
	return fetch(ctx, tx, `SELECT `+columns+` FROM payments WHERE order_id = $1 FOR UPDATE`, orderID)
}

func fetch(ctx context.Context, db sqlx.ExtContext, q string, args ...any) (Payment, error) {
	var d dbPayment
	if err := database.GetContext(ctx, db, &d, q, args...); err != nil {
		if errors.Is(err, database.ErrDBNotFound) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, fmt.Errorf("selecting payment: %w", err)
	}
	return d.toCore(), nil
}

type StatusUp struct {
	ID              string         `db:"payment_id"`
	Status          Status         `db:"status"`
	ConfirmationID  sql.NullString `db:"confirmation_id"`
	TransactionDate time.Time      `db:"transaction_date"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

// UpdateStatus moves the payment to up.Status. A null confirmation id keeps
// the stored one.
func UpdateStatus(ctx context.Context, db sqlx.ExtContext, up StatusUp) error {
	const q = `
	UPDATE payments SET
		status = :status,
		confirmation_id = COALESCE(:confirmation_id, confirmation_id),
		transaction_date = :transaction_date,
		updated_at = :updated_at
	WHERE payment_id = :payment_id`

	n, err := database.NamedExecAffected(ctx, db, q, up)
	if err != nil {
		return fmt.Errorf("updating payment[%s]: %w", up.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func QueryByStudent(ctx context.Context, db sqlx.ExtContext, studentID string) ([]WithCourse, error) {
	const q = `
	SELECT p.payment_id, p.student_id, p.course_id, p.amount, p.currency, p.gateway, p.order_id,
		p.confirmation_id, p.status, p.transaction_date, p.created_at, p.updated_at,
		c.title, c.thumbnail_url
	FROM payments p
	JOIN courses c ON c.course_id = p.course_id
	WHERE p.student_id = $1
	ORDER BY p.created_at DESC`

	var rows []struct {
		dbPayment
		Title        string `db:"title"`
		ThumbnailURL string `db:"thumbnail_url"`
	}
	if err := database.SelectContext(ctx, db, &rows, q, studentID); err != nil {
		return nil, fmt.Errorf("selecting payments of student[%s]: %w", studentID, err)
	}

	out := make([]WithCourse, 0, len(rows))
	for _, r := range rows {
		out = append(out, WithCourse{
			Payment: r.dbPayment.toCore(),
			Course: CourseSummary{
				ID:           r.CourseID,
				Title:        r.Title,
				ThumbnailURL: r.ThumbnailURL,
			},
		})
	}
	return out, nil
}

// QueryStalePending returns pending payments created before the cutoff,
// oldest first.
func QueryStalePending(ctx context.Context, db sqlx.ExtContext, before time.Time, limit int) ([]Payment, error) {
	q := `SELECT ` + columns + ` FROM payments
	WHERE status = 'pending' AND created_at < $1
	ORDER BY created_at
	LIMIT $2`

	var rows []dbPayment
	if err := database.SelectContext(ctx, db, &rows, q, before, limit); err != nil {
		return nil, fmt.Errorf("selecting stale payments: %w", err)
	}

	out := make([]Payment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

// QueryUnenrolled returns completed payments that no enrollment points at
// and whose student holds no enrollment in the course.
func QueryUnenrolled(ctx context.Context, db sqlx.ExtContext, limit int) ([]Payment, error) {
	q := `SELECT ` + columns + ` FROM payments p
	WHERE p.status = 'completed'
	AND NOT EXISTS (
		SELECT 1 FROM enrollments e
		WHERE e.student_id = p.student_id AND e.course_id = p.course_id
	)
	ORDER BY p.created_at
	LIMIT $1`

	var rows []dbPayment
	if err := database.SelectContext(ctx, db, &rows, q, limit); err != nil {
		return nil, fmt.Errorf("selecting unenrolled payments: %w", err)
	}

	out := make([]Payment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

func Earnings(ctx context.Context, db sqlx.ExtContext, educatorID string) (float64, error) {
	const q = `
	SELECT COALESCE(SUM(p.amount), 0)
	FROM payments p
	JOIN courses c ON c.course_id = p.course_id
	WHERE c.educator_id = $1 AND p.status = 'completed'`

	var total float64
	if err := database.GetContext(ctx, db, &total, q, educatorID); err != nil {
		return 0, fmt.Errorf("summing earnings of educator[%s]: %w", educatorID, err)
	}
	return total, nil
}
