package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Web    Web
	DB     DB
	Auth   Auth
	Stripe Stripe
	Paypal Paypal
	Cors   Cors
	NATS   NATS
	Sweep  Sweep
	Rate   Rate
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:8000"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:10s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

type DB struct {
	User         string `conf:"default:postgres"`
	Password     string `conf:"default:postgres,mask"`
	Host         string `conf:"default:localhost:5432"`
	Name         string `conf:"default:lms"`
	MaxIdleConns int    `conf:"default:3"`
	MaxOpenConns int    `conf:"default:10"`
	DisableTLS   bool   `conf:"default:true"`
	Migrate      bool   `conf:"default:true"`
}

type Auth struct {
	JWTSecret        string        `conf:"mask"`
	JWTIssuer        string
	OIDCIssuer       string
	OIDCClientID     string
	DiscoveryTimeout time.Duration `conf:"default:10s"`
}

type Stripe struct {
	APISecret     string        `conf:"mask"`
	WebhookSecret string        `conf:"mask"`
	SuccessURL    string        `conf:"default:http://localhost:5173/payment/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL     string        `conf:"default:http://localhost:5173/course/{course_id}"`
	URL           string
	Timeout       time.Duration `conf:"default:15s"`
}

type Paypal struct {
	ClientID  string
	Secret    string `conf:"mask"`
	URL       string `conf:"default:https://api-m.sandbox.paypal.com"`
	ReturnURL string `conf:"default:http://localhost:5173/payment/success"`
	CancelURL string `conf:"default:http://localhost:5173/course/{course_id}"`
	Timeout   time.Duration `conf:"default:15s"`
}

type Cors struct {
	Origin string
}

type NATS struct {
	URL string
}

type Sweep struct {
	Schedule   string        `conf:"default:@every 10m"`
	PendingTTL time.Duration `conf:"default:2h"`
}

type Rate struct {
	Burst    int           `conf:"default:5"`
	Interval time.Duration `conf:"default:2s"`
	Expiry   int           `conf:"default:10"`
}

// LoadEnv reads .env and .env.local when present. Variables already set in
// the environment win.
func LoadEnv() error {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", name, err)
		}
	}
	return nil
}
