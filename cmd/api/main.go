package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/payment-relay/internal/auth"
	"github.com/noah-isme/payment-relay/internal/config"
	"github.com/noah-isme/payment-relay/internal/health"
	"github.com/noah-isme/payment-relay/internal/lock"
	"github.com/noah-isme/payment-relay/internal/obs"
	"github.com/noah-isme/payment-relay/internal/payment"
	"github.com/noah-isme/payment-relay/internal/ratelimit"
	"github.com/noah-isme/payment-relay/internal/resilience"
	"github.com/noah-isme/payment-relay/internal/schema"
	"github.com/noah-isme/payment-relay/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(envOrDefault("OBS_LOG_FORMAT", "json"), envOrDefault("OBS_LOG_LEVEL", "info")).
		With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "payment_relay")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.MustRegisterMetrics(nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "payment-relay",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
			Insecure:      envBool("OBS_OTLP_INSECURE", false),
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	var rdb redis.UniversalClient
	if cfg.RedisURL != "" {
		client, err := newRedis(ctx, cfg.RedisURL, metricsEnabled, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect redis")
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		rdb = client
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled() {
		limiter, err = ratelimit.New(cfg.RateLimitStrategy, rdb, cfg.RateLimitWindow, cfg.RateLimitMax)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise rate limiter")
		}
	}

	var authenticator *auth.Authenticator
	if cfg.AuthEnabled() {
		authenticator, err = auth.NewAuthenticator(cfg.AuthJWTSecret, cfg.AuthJWTIssuer, cfg.AuthJWTAudience)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise authenticator")
		}
	} else {
		logger.Warn().Msg("AUTH_JWT_SECRET not set, caller authentication disabled")
	}

	breaker := resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
		WithTarget("stripe").
		WithLogger(logger)
	stripe, err := payment.NewStripe(payment.StripeConfig{
		SecretKey:    cfg.StripeSecretKey,
		AccountID:    cfg.StripeAccountID,
		BaseURL:      cfg.StripeBaseURL,
		APIVersion:   cfg.StripeAPIVersion,
		Timeout:      cfg.StripeTimeout,
		MaxRetries:   cfg.StripeMaxRetries,
		RetryBackoff: cfg.StripeRetryBackoff,
		Breaker:      breaker,
		Logger:       logger.With().Str("component", "stripe").Logger(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise stripe client")
	}
	svcCfg := payment.ServiceConfig{
		Provider:            stripe,
		MetadataSource:      cfg.MetadataSource,
		RefundLookback:      cfg.RefundLookbackLimit,
		CardHistoryPageSize: cfg.CardHistoryPageSize,
		CardHistoryMaxPages: cfg.CardHistoryMaxPages,
		RefundLockTTL:       cfg.RefundLockTTL,
	}
	if rdb != nil {
		svcCfg.Locker = lock.Locker{Client: rdb, Prefix: "payment-relay:lock:"}
	}
	paymentSvc, err := payment.NewService(svcCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise payment service")
	}

	checks := []health.Check{health.BreakerCheck(breaker)}
	if rdb != nil {
		checks = append(checks, health.RedisCheck(rdb))
	}

	deps := routerDeps{
		Logger:         logger,
		Payments:       &payment.Handler{Svc: paymentSvc, Validator: schema.NewValidator()},
		Health:         health.Handler{Checks: checks},
		Auth:           authenticator,
		Limiter:        limiter,
		Tracing:        tracingEnabled,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		BodyLimit:      cfg.BodyLimitBytes,
		Headers: security.Headers{
			Enable:                cfg.SecurityHeadersEnabled,
			EnableHSTS:            cfg.AppEnv == "production",
			HSTSIncludeSubdomains: true,
		},
	}
	if metricsEnabled {
		deps.HTTPMetrics = obs.NewHTTPMetrics(metricsNamespace, obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", "")), nil)
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		deps.Pprof = protectPprof(newPprofMux(),
			envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", ""),
			envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", ""))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("stripe_base_url", cfg.StripeBaseURL).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-ctx.Done():
	}

	logger.Info().Msg("shutdown requested")
	health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

func newRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
