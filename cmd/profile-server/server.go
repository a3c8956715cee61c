package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/profileapi/internal/config"
	"github.com/ehr/profileapi/internal/domain/profile"
	"github.com/ehr/profileapi/internal/platform/auth"
	"github.com/ehr/profileapi/internal/platform/db"
	"github.com/ehr/profileapi/internal/platform/middleware"
	"github.com/ehr/profileapi/internal/platform/supabase"
	"github.com/ehr/profileapi/internal/platform/telemetry"
)

// clockSkew is tolerated on exp and nbf when tokens are verified locally.
const clockSkew = 10 * time.Second

// deps are the collaborators built once at startup and shared by every
// request.
type deps struct {
	verifier auth.Verifier
	profiles profile.Repository
	backend  string
	checks   []db.Check
	closers  []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func buildDeps(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*deps, error) {
	d := &deps{}

	var sb *supabase.Client
	if cfg.UsesSupabase() {
		var err error
		sb, err = supabase.New(cfg.SupabaseURL, cfg.SupabaseAnonKey, max(cfg.IdPTimeout, cfg.StoreTimeout))
		if err != nil {
			return nil, err
		}
		d.checks = append(d.checks, db.Check{Name: "supabase", Ping: sb.Ping})
	}

	switch cfg.AuthMode {
	case config.AuthModeJWT:
		v, err := auth.NewJWTVerifier(ctx, auth.JWTConfig{
			Secret:      []byte(cfg.AuthJWTSecret),
			JWKSURL:     cfg.AuthJWKSURL,
			Issuer:      cfg.AuthIssuer,
			Audience:    cfg.AuthAudience,
			Leeway:      clockSkew,
			HTTPTimeout: cfg.IdPTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		d.verifier = v
	default:
		d.verifier = auth.NewRemoteVerifier(sb, cfg.IdPTimeout)
	}

	switch cfg.ProfileStore {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, pool.Close)
		d.checks = append(d.checks, db.PoolCheck(pool))
		d.profiles = profile.NewPGRepo(pool, cfg.ProfilesTable)
		d.backend = "postgres"
	default:
		d.profiles = profile.NewRESTRepo(sb, cfg.ProfilesTable)
		d.backend = "postgrest"
	}

	return d, nil
}

func newRouter(cfg *config.Config, logger zerolog.Logger, d *deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	if cfg.MetricsEnabled {
		e.Use(telemetry.Middleware())
	}
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/ready", db.ReadinessHandler(logger, max(cfg.IdPTimeout, cfg.StoreTimeout), d.checks...))
	if cfg.MetricsEnabled {
		e.GET("/metrics", telemetry.Handler())
	}

	svc := profile.NewService(d.profiles, d.backend, cfg.StoreTimeout)
	profile.NewHandler(svc, logger).RegisterRoutes(e.Group(""), auth.Gate(d.verifier, logger))

	return e
}

func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialise collaborators")
		return err
	}
	defer d.close()

	e := newRouter(cfg, logger, d)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().
			Str("addr", addr).
			Str("version", config.Version).
			Str("auth_mode", cfg.AuthMode).
			Str("profile_store", cfg.ProfileStore).
			Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
