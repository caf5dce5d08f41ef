package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/irsalhamdi/course-enrollment/api/web"
	"github.com/plutov/paypal/v4"
	mock "github.com/stripe/stripe-mock/param"
)

type paypalOrder struct {
	ID          string
	Amount      string
	CaptureWith string
}

type mockPaypal struct {
	mu     sync.Mutex
	seq    int
	orders map[string]*paypalOrder
}

func newMockPaypal() *mockPaypal {
	return &mockPaypal{orders: make(map[string]*paypalOrder)}
}

func (m *mockPaypal) order(id string) *paypalOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

func (m *mockPaypal) handle() http.Handler {
	token := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := map[string]any{"access_token": "A21AA-test", "token_type": "Bearer", "expires_in": 3600}
		web.Respond(context.Background(), w, tok, 200)
	})

	checkout := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var pu struct {
			Units []paypal.PurchaseUnitRequest `json:"purchase_units"`
		}
		if err := json.NewDecoder(r.Body).Decode(&pu); err != nil {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		if len(pu.Units) != 1 || pu.Units[0].Amount == nil {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		m.mu.Lock()
		m.seq++
		o := &paypalOrder{
			ID:          fmt.Sprintf("PAYPAL-%d", m.seq),
			Amount:      pu.Units[0].Amount.Value,
			CaptureWith: "COMPLETED",
		}
		m.orders[o.ID] = o
		m.mu.Unlock()

		ord := paypal.Order{
			ID:     o.ID,
			Status: "CREATED",
			Links: []paypal.Link{
				{Href: "https://www.sandbox.paypal.com/checkoutnow?token=" + o.ID, Rel: "approve", Method: "GET"},
			},
		}
		web.Respond(context.Background(), w, ord, 201)
	})

	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o := m.order(mux.Vars(r)["id"])
		if o == nil {
			web.Respond(context.Background(), w, nil, 404)
			return
		}

		resp := map[string]any{
			"id":     o.ID,
			"status": o.CaptureWith,
			"purchase_units": []any{map[string]any{
				"payments": map[string]any{
					"captures": []any{map[string]any{"id": "CAPTURE-" + o.ID, "status": o.CaptureWith}},
				},
			}},
		}
		web.Respond(context.Background(), w, resp, 201)
	})

	r := mux.NewRouter()
	r.Handle("/v1/oauth2/token", token).Methods("POST")
	r.Handle("/v2/checkout/orders", checkout).Methods("POST")
	r.Handle("/v2/checkout/orders/{id}/capture", capture).Methods("POST")
	return r
}

type stripeSession struct {
	ID            string
	UnitAmount    int64
	Metadata      map[string]string
	Status        string
	PaymentStatus string
}

func (s *stripeSession) object() map[string]any {
	return map[string]any{
		"id":             s.ID,
		"object":         "checkout.session",
		"mode":           "payment",
		"url":            "https://checkout.stripe.com/c/pay/" + s.ID,
		"amount_total":   s.UnitAmount,
		"currency":       "usd",
		"metadata":       s.Metadata,
		"status":         s.Status,
		"payment_status": s.PaymentStatus,
		"payment_intent": "pi_" + s.ID,
	}
}

type mockStripe struct {
	mu       sync.Mutex
	seq      int
	sessions map[string]*stripeSession
	fail     bool
}

func newMockStripe() *mockStripe {
	return &mockStripe{sessions: make(map[string]*stripeSession)}
}

func (m *mockStripe) session(id string) *stripeSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// settle changes what a later session read reports.
func (m *mockStripe) settle(id, status, paymentStatus string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Status = status
		s.PaymentStatus = paymentStatus
	}
}

func (m *mockStripe) failing(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

func (m *mockStripe) handle() http.Handler {
	checkout := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		fail := m.fail
		m.mu.Unlock()
		if fail {
			resp := map[string]any{"error": map[string]any{"type": "api_error", "message": "stripe is down"}}
			web.Respond(context.Background(), w, resp, 500)
			return
		}

		params, err := mock.ParseParams(r)
		if err != nil {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		lines, ok := params["line_items"].(map[string]any)
		if !ok || len(lines) != 1 {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		var unit int64
		for _, li := range lines {
			it := li.(map[string]any)
			if it["quantity"] != "1" {
				web.Respond(context.Background(), w, nil, 400)
				return
			}

			pd := it["price_data"].(map[string]any)
			unit, err = strconv.ParseInt(pd["unit_amount"].(string), 10, 64)
			if err != nil {
				web.Respond(context.Background(), w, nil, 400)
				return
			}
		}

		meta := make(map[string]string)
		if md, ok := params["metadata"].(map[string]any); ok {
			for k, v := range md {
				meta[k], _ = v.(string)
			}
		}

		m.mu.Lock()
		m.seq++
		s := &stripeSession{
			ID:            fmt.Sprintf("cs_test_%d", m.seq),
			UnitAmount:    unit,
			Metadata:      meta,
			Status:        "open",
			PaymentStatus: "unpaid",
		}
		m.sessions[s.ID] = s
		obj := s.object()
		m.mu.Unlock()

		web.Respond(context.Background(), w, obj, 200)
	})

	show := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()

		s, ok := m.sessions[mux.Vars(r)["id"]]
		if !ok {
			resp := map[string]any{"error": map[string]any{"type": "invalid_request_error", "message": "no such session"}}
			web.Respond(context.Background(), w, resp, 404)
			return
		}
		web.Respond(context.Background(), w, s.object(), 200)
	})

	r := mux.NewRouter()
	r.Handle("/v1/checkout/sessions", checkout).Methods("POST")
	r.Handle("/v1/checkout/sessions/{id}", show).Methods("GET")
	return r
}
