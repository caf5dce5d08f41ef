package payment

import (
	"errors"
	"math"
	"strconv"
	"time"
)

var (
	ErrNotFound           = errors.New("payment not found")
	ErrNotOwner           = errors.New("payment belongs to another student")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrCaptureIncomplete  = errors.New("payment was not captured")
	ErrMissingMetadata    = errors.New("checkout session carries no enrollment metadata")
)

type Status string

const (
	Pending   Status = "pending"
	Completed Status = "completed"
	Failed    Status = "failed"
)

type Gateway string

const (
	Stripe Gateway = "stripe"
	Paypal Gateway = "paypal"
)

const currency = "USD"

type Payment struct {
	ID              string    `json:"id"`
	StudentID       string    `json:"studentId"`
	CourseID        string    `json:"courseId"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	Gateway         Gateway   `json:"gateway"`
	OrderID         string    `json:"orderId"`
	ConfirmationID  *string   `json:"confirmationId"`
	Status          Status    `json:"status"`
	TransactionDate time.Time `json:"transactionDate"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type OrderNew struct {
	CourseID string  `json:"courseId" validate:"required,uuid"`
	Gateway  Gateway `json:"gateway" validate:"omitempty,oneof=stripe paypal"`
}

type Order struct {
	SessionID  string  `json:"sessionId"`
	SessionURL string  `json:"sessionUrl"`
	Payment    Payment `json:"payment"`
}

// Completion is a provider's confirmation that an order was paid. The
// student, course and payment ids travel with it so a payment row lost after
// the provider accepted the order can be rebuilt.
type Completion struct {
	OrderID        string
	ConfirmationID string
	PaymentID      string
	StudentID      string
	CourseID       string
	Amount         float64
	Gateway        Gateway
}

type CourseSummary struct {
	ID           string `json:"id"`
	Title        string `json:"courseTitle"`
	ThumbnailURL string `json:"courseThumbnail"`
}

type WithCourse struct {
	Payment
	Course CourseSummary `json:"course"`
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromCents(cents int64) float64 {
	return float64(cents) / 100
}

func decimal(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}
