package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/hmis/hmis/internal/config"
	"github.com/hmis/hmis/internal/domain/admin"
	"github.com/hmis/hmis/internal/domain/billing"
	"github.com/hmis/hmis/internal/domain/diagnostics"
	"github.com/hmis/hmis/internal/domain/identity"
	"github.com/hmis/hmis/internal/domain/room"
	"github.com/hmis/hmis/internal/platform/auth"
	"github.com/hmis/hmis/internal/platform/db"
	"github.com/hmis/hmis/internal/platform/lock"
	"github.com/hmis/hmis/internal/platform/middleware"
)

type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

// serverDeps is everything newEcho needs that touches the outside world.
type serverDeps struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Issuer   *auth.TokenIssuer
	Health   echo.HandlerFunc
	Handlers []routeRegistrar
}

// newEcho builds the HTTP stack: global middleware, health probes and the
// authenticated /api/v1 group.
func newEcho(d serverDeps) *echo.Echo {
	cfg := d.Config

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(d.Logger))
	e.Use(middleware.Logger(d.Logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.LegacyTokenHeader},
	}))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Health != nil {
		e.GET("/health/db", d.Health)
	}

	jwtCfg := auth.JWTConfig{Issuer: d.Issuer, Skipper: auth.AuthSkipper}
	apiV1 := e.Group("/api/v1")
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		apiV1.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		apiV1.Use(auth.JWTMiddleware(jwtCfg))
	}

	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rl))
	apiV1.Use(middleware.Audit(d.Logger))

	for _, h := range d.Handlers {
		h.RegisterRoutes(apiV1)
	}
	return e
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		boot := newLogger(nil)
		boot.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		logger.Warn().Msg("development auth is active: requests without a token run as Admin")
	}

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	probes := map[string]db.Pinger{"postgres": pool}

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisURL != "" {
		client, err := lock.Dial(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		rl := lock.NewRedis(client, cfg.LockTTL, logger)
		locker = rl
		probes["redis"] = rl
		logger.Info().Msg("using redis record locks")
	}

	txFunc := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.RunInTx(ctx, pool, fn)
	}

	identitySvc := identity.NewService(identity.NewPatientRepoPG(pool), identity.NewDoctorRepoPG(pool), logger)

	roomSvc := room.NewService(room.NewRepoPG(pool), room.NewEventRepoPG(pool), identitySvc, locker, logger)
	roomSvc.SetTxFunc(txFunc)

	billingSvc := billing.NewService(billing.NewRepoPG(pool), identitySvc, locker, logger)
	diagnosticsSvc := diagnostics.NewService(diagnostics.NewReportRepoPG(pool), identitySvc, logger)

	issuer := auth.NewTokenIssuer(cfg.SigningSecret(), cfg.TokenTTL)
	adminSvc := admin.NewService(admin.NewUserRepoPG(pool), issuer, logger)

	e := newEcho(serverDeps{
		Config: cfg,
		Logger: logger,
		Issuer: issuer,
		Health: db.HealthHandler(pool, probes),
		Handlers: []routeRegistrar{
			admin.NewHandler(adminSvc),
			identity.NewHandler(identitySvc),
			room.NewHandler(roomSvc),
			billing.NewHandler(billingSvc),
			diagnostics.NewHandler(diagnosticsSvc),
		},
	})

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
