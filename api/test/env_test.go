package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/irsalhamdi/course-enrollment/api"
	"github.com/irsalhamdi/course-enrollment/api/background"
	"github.com/irsalhamdi/course-enrollment/config"
	"github.com/irsalhamdi/course-enrollment/core/auth"
	"github.com/irsalhamdi/course-enrollment/core/claims"
	"github.com/irsalhamdi/course-enrollment/core/payment"
	"github.com/irsalhamdi/course-enrollment/database"
	"github.com/irsalhamdi/course-enrollment/events"
	"github.com/irsalhamdi/course-enrollment/metrics"
	"github.com/irsalhamdi/course-enrollment/rate"
	"github.com/jmoiron/sqlx"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

const (
	jwtSecret     = "test-secret"
	webhookSecret = "whsec_test"
)

type TestEnv struct {
	*httptest.Server
	DB            *sqlx.DB
	Log           *logrus.Logger
	Services      api.Services
	Stripe        *mockStripe
	Paypal        *mockPaypal
	WebhookSecret string

	tokens *auth.JWTVerifier
}

// NewTestEnv starts a disposable Postgres, migrates it and serves the API
// against mocked payment providers. It skips the test when docker is not
// reachable.
func NewTestEnv(t *testing.T, name string) (*TestEnv, error) {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	pool.MaxWait = 2 * time.Minute

	res, err := pool.RunWithOptions(&dockertest.RunOptions{
		Name:       fmt.Sprintf("%s_%d", name, time.Now().UnixNano()),
		Repository: "postgres",
		Tag:        "15-alpine",
		Env: []string{
			"POSTGRES_USER=postgres",
			"POSTGRES_PASSWORD=postgres",
			"POSTGRES_DB=lms",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, fmt.Errorf("starting postgres: %w", err)
	}
	t.Cleanup(func() {
		if err := pool.Purge(res); err != nil {
			t.Logf("purging postgres: %v", err)
		}
	})
	_ = res.Expire(300)

	db, err := database.Open(config.DB{
		User:         "postgres",
		Password:     "postgres",
		Host:         res.GetHostPort("5432/tcp"),
		Name:         "lms",
		MaxIdleConns: 2,
		MaxOpenConns: 10,
		DisableTLS:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	t.Cleanup(func() { db.Close() })

	err = pool.Retry(func() error {
		return database.StatusCheck(context.Background(), db)
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for postgres: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrating: %w", err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	ms := newMockStripe()
	stripeSrv := httptest.NewServer(ms.handle())
	t.Cleanup(stripeSrv.Close)

	mp := newMockPaypal()
	paypalSrv := httptest.NewServer(mp.handle())
	t.Cleanup(paypalSrv.Close)

	strp := &stripecl.API{}
	strp.Init("sk_test_123", &stripe.Backends{
		API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(stripeSrv.URL),
			MaxNetworkRetries: stripe.Int64(0),
		}),
	})

	pp, err := paypal.NewClient("client", "secret", paypalSrv.URL)
	if err != nil {
		return nil, fmt.Errorf("building paypal client: %w", err)
	}

	tokens, err := auth.NewJWTVerifier(jwtSecret, "")
	if err != nil {
		return nil, err
	}

	bg := background.New(log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		bg.Shutdown(ctx)
	})

	lim := rate.NewLimiter(100, time.Minute, rate.Every(time.Millisecond))
	t.Cleanup(lim.Stop)

	cfg := api.APIConfig{
		Log:        log,
		DB:         db,
		Background: bg,
		Verifier:   tokens,
		Gateways: payment.Gateways{
			Stripe: strp,
			StripeConfig: config.Stripe{
				WebhookSecret: webhookSecret,
				SuccessURL:    "http://localhost/success",
				CancelURL:     "http://localhost/course/{course_id}",
				Timeout:       5 * time.Second,
			},
			Paypal: pp,
			PaypalConfig: config.Paypal{
				ReturnURL: "http://localhost/success",
				CancelURL: "http://localhost/course/{course_id}",
				Timeout:   5 * time.Second,
			},
		},
		Events:  events.NewNoop(),
		Metrics: metrics.New(),
		Limiter: lim,
	}
	svc := api.NewServices(cfg)

	srv := httptest.NewServer(api.APIMux(cfg, svc))
	t.Cleanup(srv.Close)

	return &TestEnv{
		Server:        srv,
		DB:            db,
		Log:           log,
		Services:      svc,
		Stripe:        ms,
		Paypal:        mp,
		WebhookSecret: webhookSecret,
		tokens:        tokens,
	}, nil
}

// Token issues a bearer token for a user with the given role.
func (e *TestEnv) Token(t *testing.T, userID, role string) string {
	t.Helper()

	tok, err := e.tokens.Issue(claims.Principal{
		UserID: userID,
		Role:   role,
		Name:   strings.ToUpper(userID[:1]) + userID[1:],
		Email:  userID + "@example.com",
	}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

// Do sends body as JSON with an optional bearer token.
func (e *TestEnv) Do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	w, err := e.send(method, path, token, body)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Body.Close() })
	return w
}

// send is Do for goroutines other than the test's own.
func (e *TestEnv) send(method, path, token string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}

	r, err := http.NewRequest(method, e.URL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	return e.Client().Do(r)
}

// status sends the request and returns only the status code.
func (e *TestEnv) status(method, path, token string, body any) (int, error) {
	w, err := e.send(method, path, token, body)
	if err != nil {
		return 0, err
	}
	defer w.Body.Close()

	_, _ = io.Copy(io.Discard, w.Body)
	return w.StatusCode, nil
}

// Expect fails the test unless w has the wanted status, then decodes the
// body into dst when dst is not nil.
func Expect(t *testing.T, w *http.Response, status int, dst any) {
	t.Helper()

	b, err := io.ReadAll(w.Body)
	if err != nil {
		t.Fatal(err)
	}

	if w.StatusCode != status {
		t.Fatalf("%s %s: expected status %d, got %d: %s", w.Request.Method, w.Request.URL.Path, status, w.StatusCode, b)
	}

	if dst != nil {
		if err := json.Unmarshal(b, dst); err != nil {
			t.Fatalf("decoding %s: %v", b, err)
		}
	}
}

func escape(s string) string {
	return url.PathEscape(s)
}
