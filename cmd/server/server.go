package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/irsalhamdi/course-enrollment/api"
	"github.com/irsalhamdi/course-enrollment/api/background"
	"github.com/irsalhamdi/course-enrollment/config"
	"github.com/irsalhamdi/course-enrollment/core/auth"
	"github.com/irsalhamdi/course-enrollment/core/payment"
	"github.com/irsalhamdi/course-enrollment/database"
	"github.com/irsalhamdi/course-enrollment/events"
	"github.com/irsalhamdi/course-enrollment/metrics"
	"github.com/irsalhamdi/course-enrollment/rate"
	"github.com/irsalhamdi/course-enrollment/reconcile"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := Run(log); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func Run(logger *logrus.Logger) error {
	logger.Infof("starting server")
	defer logger.Info("shutdown complete")

	if err := config.LoadEnv(); err != nil {
		return err
	}

	const prefix = "LMS"
	var cfg config.Config
	if help, err := conf.Parse(prefix, &cfg); err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	logger.Infof("startup config:\n%s", out)

	lw := logger.Writer()
	defer lw.Close()
	errLog := log.New(lw, "", 0)

	db, err := database.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open db connection: %w", err)
	}
	defer db.Close()

	if cfg.DB.Migrate {
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to migrate the database: %w", err)
		}
	}

	bg := background.New(logger)

	gw, err := buildGateways(logger, cfg)
	if err != nil {
		return err
	}

	verifier, err := buildVerifier(cfg.Auth)
	if err != nil {
		return err
	}

	pub := events.ConnectOrNoop(cfg.NATS.URL, logger)
	defer pub.Close()

	lim := rate.NewLimiter(cfg.Rate.Burst, time.Duration(cfg.Rate.Expiry)*time.Minute, rate.Every(cfg.Rate.Interval))
	defer lim.Stop()

	apiCfg := api.APIConfig{
		CorsOrigin: cfg.Cors.Origin,
		Log:        logger,
		DB:         db,
		Background: bg,
		Verifier:   verifier,
		Gateways:   gw,
		Events:     pub,
		Metrics:    metrics.New(),
		Limiter:    lim,
	}
	svc := api.NewServices(apiCfg)
	mux := api.APIMux(apiCfg, svc)

	sweeper := reconcile.New(logger, db, svc.Payment, cfg.Sweep.PendingTTL, apiCfg.Metrics)
	sched, err := sweeper.Start(cfg.Sweep.Schedule)
	if err != nil {
		return err
	}

	api := http.Server{
		Handler:      mux,
		Addr:         cfg.Web.Address,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     errLog,
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Infof("starting api router at %s", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Infof("shutting down: signal %s", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		<-sched.Stop().Done()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}

		if err := bg.Shutdown(ctx); err != nil {
			return fmt.Errorf("could not complete all background tasks: %w", err)
		}
	}
	return nil
}

// buildGateways builds the payment provider clients. A provider without
// credentials stays disabled.
func buildGateways(logger *logrus.Logger, cfg config.Config) (payment.Gateways, error) {
	gw := payment.Gateways{
		StripeConfig: cfg.Stripe,
		PaypalConfig: cfg.Paypal,
	}

	if cfg.Stripe.APISecret != "" {
		bc := &stripe.BackendConfig{
			HTTPClient: &http.Client{Timeout: cfg.Stripe.Timeout},
		}
		if cfg.Stripe.URL != "" {
			bc.URL = stripe.String(cfg.Stripe.URL)
		}

		strp := &stripecl.API{}
		strp.Init(cfg.Stripe.APISecret, &stripe.Backends{
			API:     stripe.GetBackendWithConfig(stripe.APIBackend, bc),
			Connect: stripe.GetBackend(stripe.ConnectBackend),
			Uploads: stripe.GetBackend(stripe.UploadsBackend),
		})
		gw.Stripe = strp
	} else {
		logger.Warn("stripe disabled: no api secret")
	}

	if cfg.Paypal.ClientID != "" {
		pp, err := paypal.NewClient(
			cfg.Paypal.ClientID,
			cfg.Paypal.Secret,
			cfg.Paypal.URL,
		)
		if err != nil {
			return payment.Gateways{}, fmt.Errorf("failed to build the paypal client: %w", err)
		}
		pp.Client = &http.Client{Timeout: cfg.Paypal.Timeout}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Paypal.Timeout)
		defer cancel()

		if _, err = pp.GetAccessToken(ctx); err != nil {
			return payment.Gateways{}, fmt.Errorf("failed to get the first paypal access token: %w", err)
		}
		gw.Paypal = pp
	} else {
		logger.Warn("paypal disabled: no client id")
	}

	return gw, nil
}

func buildVerifier(cfg config.Auth) (auth.Verifier, error) {
	if cfg.OIDCIssuer != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.DiscoveryTimeout)
		defer cancel()

		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
		if err != nil {
			return nil, fmt.Errorf("failed to discover the identity provider: %w", err)
		}
		return v, nil
	}

	v, err := auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to build the token verifier: %w", err)
	}
	return v, nil
}
