package main

import (
	"context"
	"fmt"
	"net/http"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medikore/medikore/internal/config"
	"github.com/medikore/medikore/internal/domain/directory"
	"github.com/medikore/medikore/internal/domain/queue"
	"github.com/medikore/medikore/internal/platform/auth"
	"github.com/medikore/medikore/internal/platform/db"
	"github.com/medikore/medikore/internal/platform/events"
	"github.com/medikore/medikore/internal/platform/metrics"
	"github.com/medikore/medikore/internal/platform/middleware"
	"github.com/medikore/medikore/internal/platform/websocket"
)

// Booking is limited per caller on top of the API wide limit.
const (
	bookingRPS   = 0.5
	bookingBurst = 5
)

type app struct {
	echo    *echo.Echo
	hub     *websocket.Hub
	relay   *events.Relay
	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg *prometheus.Registry) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	// Storage
	var (
		repo   queue.Repository
		dir    queue.Directory
		pinger db.Pinger
	)
	switch cfg.StoreDriver {
	case config.StoreMemory:
		mem := directory.NewMemory()
		if cfg.DevSeed {
			seedMemory(mem)
		}
		repo, dir = queue.NewMemoryRepository(), mem
		logger.Warn().Msg("using in-memory store; data is lost on restart")
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		logger.Info().Msg("connected to database")
		if cfg.DevSeed {
			if err := seedPostgres(ctx, pool); err != nil {
				return nil, err
			}
		}
		repo, dir, pinger = queue.NewRepoPG(pool), directory.NewRepoPG(pool), pool
	}

	// Events: with Redis every instance relays the shared channel into its
	// own hub, otherwise the hub is published to directly.
	a.hub = websocket.NewHub(logger)
	var publishers events.Fanout
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		a.relay, err = events.NewRelay(ctx, rdb, cfg.EventsChannel, a.hub, logger)
		if err != nil {
			return nil, err
		}
		relay := a.relay
		a.closers = append(a.closers, func() { _ = relay.Close() })
		publishers = append(publishers, events.NewRedisPublisher(rdb, cfg.EventsChannel))
	} else {
		publishers = append(publishers, a.hub)
	}
	if cfg.EventsSQSQueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		publishers = append(publishers, events.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.EventsSQSQueueURL))
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Tracing())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.NewHTTPMetrics(reg).Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if pinger != nil {
		e.GET("/health/db", db.HealthHandler(pinger))
	}
	e.GET("/metrics", metrics.Handler(reg))

	// API
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	svc := queue.NewService(repo, dir,
		queue.WithLogger(logger),
		queue.WithMetrics(metrics.NewQueueMetrics(reg)),
		queue.WithMaxLeaveDays(cfg.MaxLeaveDays),
	)
	queue.NewHandler(svc,
		queue.WithPublisher(publishers),
		queue.WithHandlerLogger(logger),
		queue.WithClinicLocation(loc),
		queue.WithBookingMiddleware(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: bookingRPS,
			BurstSize:         bookingBurst,
			KeyFunc:           callerKey,
		})),
	).RegisterRoutes(apiV1)

	// Queue boards
	websocket.NewHandler(a.hub, cfg.CORSOrigins).RegisterRoutes(e.Group(""))

	a.echo = e
	return a, nil
}

// callerKey buckets authenticated callers by user and everyone else by IP.
func callerKey(c echo.Context) string {
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		return "user:" + uid
	}
	return "ip:" + c.RealIP()
}
