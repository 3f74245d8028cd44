package router // package router wires handlers and middleware onto echo

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/library-loans/internal/config"
	"github.com/iliyamo/library-loans/internal/database"
	"github.com/iliyamo/library-loans/internal/handler"
	"github.com/iliyamo/library-loans/internal/middleware"
	"github.com/iliyamo/library-loans/internal/repository"
	"github.com/iliyamo/library-loans/internal/service"
)

// Deps is everything the HTTP surface needs.  Redis may be nil, in which
// case caching and rate limiting are pass-through.
type Deps struct {
	Cfg       config.Config
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
	DB        *database.DB
	Ledger    *service.Ledger
	Redis     *redis.Client
	Log       *zap.Logger
}

// New builds the echo instance with every route registered.
func New(d Deps) *echo.Echo {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.JSONSerializer = handler.JSONSerializer{}
	e.HTTPErrorHandler = handler.HTTPErrorHandler

	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(middleware.PurgeOnWrite(d.Cache, d.Redis, d.Log))

	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log)
	cache := middleware.NewRedisCache(d.Cache, d.Redis)

	RegisterRoutes(e, d.DB)
	RegisterAuth(e, handler.NewAuthHandler(d.Cfg,
		repository.NewUserRepo(d.DB), repository.NewTokenRepo(d.DB)), d.Cfg.JWTSecret, limit)
	RegisterCatalog(e, handler.NewCatalogHandler(
		repository.NewAuthorRepo(d.DB), repository.NewBookRepo(d.DB)), d.Cfg.JWTSecret, cache)
	RegisterLoans(e, handler.NewLoanHandler(d.Ledger), d.Cfg.JWTSecret, limit)
	return e
}

// RegisterRoutes registers the unauthenticated probes.
func RegisterRoutes(e *echo.Echo, db *database.DB) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterAuth registers credential endpoints and the protected /me.
// Credential endpoints sit behind the rate limiter.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	e.POST("/register", a.Register, limit)
	e.POST("/login", a.Login, limit)
	e.POST("/refresh", a.Refresh, limit)
	e.POST("/logout", a.Logout)

	e.GET("/me", a.Me, middleware.JWTAuth(jwtSecret))
}
