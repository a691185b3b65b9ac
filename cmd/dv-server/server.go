package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/diagnosisview/dvserver/internal/config"
	"github.com/diagnosisview/dvserver/internal/domain/coding"
	"github.com/diagnosisview/dvserver/internal/domain/institution"
	"github.com/diagnosisview/dvserver/internal/domain/linkrule"
	"github.com/diagnosisview/dvserver/internal/domain/listing"
	"github.com/diagnosisview/dvserver/internal/domain/logorule"
	"github.com/diagnosisview/dvserver/internal/domain/resolution"
	"github.com/diagnosisview/dvserver/internal/platform/auth"
	"github.com/diagnosisview/dvserver/internal/platform/cache"
	"github.com/diagnosisview/dvserver/internal/platform/db"
	"github.com/diagnosisview/dvserver/internal/platform/middleware"
)

// app holds the wired services shared by the server and the CLI commands.
type app struct {
	institutions *institution.Service
	codes        *coding.Service
	linkRules    *linkrule.Service
	logoRules    *logorule.Service
	listings     *listing.Service
	loader       *cache.Loader
}

func newApp(cfg *config.Config, pool *pgxpool.Pool, store cache.Store, logger zerolog.Logger) *app {
	codeRepo := coding.NewCodeRepoPG(pool)
	linkRepo := coding.NewLinkRepoPG(pool)
	mappingRepo := coding.NewMappingRepoPG(pool)
	ruleRepo := linkrule.NewRepoPG(pool)
	loader := cache.NewLoader(store, logger)

	institutions := institution.NewService(institution.NewRepoPG(pool), ruleRepo, loader)
	mat := linkrule.NewMaterializer(ruleRepo, linkRepo, mappingRepo, cfg.RematerializeWorkers, logger)
	linkRules := linkrule.NewService(ruleRepo, mappingRepo, mat, institutions, loader, logger)
	logoRules := logorule.NewService(logorule.NewRepoPG(pool), linkRepo, loader, logger)

	return &app{
		institutions: institutions,
		codes:        coding.NewService(codeRepo, linkRepo, mappingRepo, mat, logoRules, loader, logger),
		linkRules:    linkRules,
		logoRules:    logoRules,
		listings:     listing.NewService(codeRepo, institutions, resolution.NewResolver(logger), loader, logger),
		loader:       loader,
	}
}

// newCacheStore selects Redis when REDIS_URL is set, otherwise an in-process
// store swept once a minute. The returned func releases the store.
func newCacheStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Store, func(), error) {
	if cfg.RedisURL != "" {
		rs, err := cache.NewRedisStore(ctx, cfg.RedisURL, cfg.CacheTTL, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Msg("listing cache: redis")
		return rs, func() { _ = rs.Close() }, nil
	}

	cleanupCtx, cancel := context.WithCancel(ctx)
	ms := cache.NewMemoryStore(cfg.CacheTTL)
	ms.StartCleanup(cleanupCtx, time.Minute)
	logger.Info().Msg("listing cache: in-memory")
	return ms, cancel, nil
}

func newServer(cfg *config.Config, a *app, pool *pgxpool.Pool, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadBodyLimit, "/api/v1/admin/logorules"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
			Optional:   true,
			Skipper:    auth.AuthSkipper,
		}))
	}
	// Logger runs after auth so lines carry the caller's identity.
	e.Use(middleware.Logger(logger))
	e.Use(db.PoolMiddleware(pool))

	apiV1 := e.Group("/api/v1")
	admin := apiV1.Group("/admin")

	listing.NewHandler(a.listings).RegisterRoutes(apiV1)
	coding.NewHandler(a.codes).RegisterRoutes(admin)
	institution.NewHandler(a.institutions).RegisterRoutes(admin)
	linkrule.NewHandler(a.linkRules).RegisterRoutes(admin)
	logorule.NewHandler(a.logoRules).RegisterRoutes(admin, apiV1)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	store, closeStore, err := newCacheStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open listing cache")
	}
	defer closeStore()

	e := newServer(cfg, newApp(cfg, pool, store, logger), pool, logger)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
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
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
